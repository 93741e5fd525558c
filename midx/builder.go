// Copyright 2020 The gg Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package midx

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// BuildResult describes a successfully built MIDX file.
type BuildResult struct {
	// Path is the final path the MIDX file was written to.
	Path string
	// Checksum is the trailing hash of the file, also embedded in Path's
	// basename when name was not supplied to Build.
	Checksum OID
	// ObjectCount is the number of distinct OIDs recorded, after dedup.
	ObjectCount int
}

// Build assembles a MIDX file from packNames (unordered pack filenames,
// relative to dir) and entries (unordered object tuples tagged with the
// pre-sort index of their owning pack into packNames), and atomically
// writes it into dir.
//
// If name is empty, the file is named "midx-<hex checksum>.midx"; otherwise
// name is used as given (still written atomically within dir).
func Build(dir string, packNames []string, entries []ObjectEntry, name string) (*BuildResult, error) {
	sortedNames, perm := sortPackNames(packNames)
	for i := 1; i < len(sortedNames); i++ {
		if sortedNames[i-1] == sortedNames[i] {
			return nil, fmt.Errorf("midx: build: structural bug: duplicate pack name %q", sortedNames[i])
		}
	}

	sorted := sortAndDedupEntries(entries)
	for i := 1; i < len(sorted); i++ {
		if bytes.Compare(sorted[i-1].OID[:], sorted[i].OID[:]) >= 0 {
			return nil, fmt.Errorf("midx: build: structural bug: entries not strictly ordered after sort")
		}
	}

	needsLargeOffsets := false
	for _, e := range sorted {
		if e.Offset < 0 {
			return nil, fmt.Errorf("midx: build: negative offset for %v", e.OID)
		}
		if e.Offset > maxLiteralOffset {
			needsLargeOffsets = true
		}
	}

	buf := new(bytes.Buffer)
	if err := writeMIDX(buf, sortedNames, perm, sorted, needsLargeOffsets); err != nil {
		return nil, err
	}
	content := buf.Bytes()
	sum := sha1OfTrailer(content)

	finalName := name
	if finalName == "" {
		finalName = fmt.Sprintf("midx-%s.midx", hex.EncodeToString(sum[:]))
	}
	finalPath := filepath.Join(dir, finalName)
	if err := atomic.WriteFile(finalPath, bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("midx: build: write %s: %w", finalPath, err)
	}
	return &BuildResult{Path: finalPath, Checksum: sum, ObjectCount: len(sorted)}, nil
}

// sha1OfTrailer returns the trailing hash-length bytes already appended by
// writeMIDX/finalize, i.e. the checksum that was just written to content.
func sha1OfTrailer(content []byte) OID {
	var sum OID
	copy(sum[:], content[len(content)-hashLen:])
	return sum
}

func writeMIDX(w *bytes.Buffer, sortedNames []string, perm []int, sorted []ObjectEntry, needsLargeOffsets bool) error {
	n := len(sorted)
	packCount := len(sortedNames)

	var header [headerSize]byte
	copy(header[0:4], magic[:])
	htonl(header[4:8], version)
	header[8] = hashVersion
	header[9] = hashLen
	header[10] = 0 // base-midx count
	numChunks := 5
	if needsLargeOffsets {
		numChunks = 6
	}
	header[11] = byte(numChunks)
	htonl(header[12:16], uint32(packCount))

	packNamesPayload := new(bytes.Buffer)
	packNameOffsets := make([]uint32, packCount)
	for i, name := range sortedNames {
		packNameOffsets[i] = uint32(packNamesPayload.Len())
		packNamesPayload.WriteString(name)
		packNamesPayload.WriteByte(0)
	}

	fanout := buildFanout(sorted)

	plans := []chunkPlan{
		{chunkIDPackNameLookup, int64(packCount) * 4},
		{chunkIDPackNames, int64(packNamesPayload.Len())},
		{chunkIDOIDFanout, fanoutEntries * 4},
		{chunkIDOIDLookup, int64(n) * hashLen},
		{chunkIDObjectOffsets, int64(n) * 8},
	}
	if needsLargeOffsets {
		largeCount := 0
		for _, e := range sorted {
			if e.Offset > maxLiteralOffset {
				largeCount++
			}
		}
		plans = append(plans, chunkPlan{chunkIDLargeOffsets, int64(largeCount) * 8})
	}

	cw, err := beginChunkWriter(w, header[:], plans)
	if err != nil {
		return err
	}

	if err := cw.appendChunk(chunkIDPackNameLookup, func(out io.Writer) error {
		var buf [4]byte
		for _, off := range packNameOffsets {
			htonl(buf[:], off)
			if _, err := out.Write(buf[:]); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := cw.appendChunk(chunkIDPackNames, func(out io.Writer) error {
		_, err := out.Write(packNamesPayload.Bytes())
		return err
	}); err != nil {
		return err
	}

	if err := cw.appendChunk(chunkIDOIDFanout, func(out io.Writer) error {
		var buf [4]byte
		for _, c := range fanout {
			htonl(buf[:], c)
			if _, err := out.Write(buf[:]); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := cw.appendChunk(chunkIDOIDLookup, func(out io.Writer) error {
		for _, e := range sorted {
			if _, err := out.Write(e.OID[:]); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	var largeOffsets []int64
	if err := cw.appendChunk(chunkIDObjectOffsets, func(out io.Writer) error {
		var buf [8]byte
		for _, e := range sorted {
			postID := perm[e.PackIndex]
			htonl(buf[:4], uint32(postID))
			if e.Offset > maxLiteralOffset {
				idx := len(largeOffsets)
				largeOffsets = append(largeOffsets, e.Offset)
				htonl(buf[4:], largeOffsetEscapeBit|uint32(idx))
			} else {
				htonl(buf[4:], uint32(e.Offset))
			}
			if _, err := out.Write(buf[:]); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if needsLargeOffsets {
		if err := cw.appendChunk(chunkIDLargeOffsets, func(out io.Writer) error {
			var buf [8]byte
			for _, off := range largeOffsets {
				htonll(buf[:], uint64(off))
				if _, err := out.Write(buf[:]); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return err
		}
	}

	_, err = cw.finalize()
	return err
}
