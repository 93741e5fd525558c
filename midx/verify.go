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
	"context"
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/mmap"
	"golang.org/x/sync/errgroup"

	"gg-scm.io/pkg/gitmidx/packfile"
)

var verifyLog = logrus.WithField("component", "midx.verify")

// Violation describes a single invariant the verifier found broken. Kind is
// a short machine-stable label (see the Kind* constants); Detail is a
// human-readable description.
type Violation struct {
	Kind   string
	Detail string
}

// Violation kinds.
const (
	KindChecksum     = "checksum"
	KindOrder        = "order"
	KindFanout       = "fanout"
	KindStalePack    = "stale-pack"
	KindOffsetMismatch = "offset-mismatch"
)

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Kind, v.Detail)
}

// Report is the result of Verify: every violation found, in no particular
// order across the concurrent per-entry checks.
type Report struct {
	Violations []Violation
}

// OK reports whether no violations were found.
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

// Verify independently re-derives every MIDX invariant from the raw bytes
// of the file at path, without relying on any Reader's cached state, and
// cross-checks each entry's recorded offset against the corresponding
// pack's own index in packDir. It reports every violation it finds rather
// than stopping at the first.
func Verify(path string, packDir string) (*Report, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("midx: verify %s: %w", path, err)
	}
	defer ra.Close()

	size := int64(ra.Len())
	if size < headerSize+chunkTableEntrySize+hashLen {
		return nil, fmt.Errorf("midx: verify %s: file too short", path)
	}
	data := make([]byte, size)
	if _, err := ra.ReadAt(data, 0); err != nil {
		return nil, fmt.Errorf("midx: verify %s: %w", path, err)
	}

	report := &Report{}
	add := func(v Violation) {
		report.Violations = append(report.Violations, v)
		verifyLog.WithField("kind", v.Kind).Warn(v.Detail)
	}

	if !bytes.Equal(data[0:4], magic[:]) {
		return nil, fmt.Errorf("midx: verify %s: bad magic", path)
	}
	numChunks := int(data[11])
	packCount := int(ntohl(data[12:16]))

	// Checksum.
	h := sha1.New()
	h.Write(data[:size-hashLen])
	got := h.Sum(nil)
	want := data[size-hashLen:]
	if !bytes.Equal(got, want) {
		add(Violation{KindChecksum, fmt.Sprintf("recomputed %x does not match stored %x", got, want)})
	}

	entries, err := parseChunkTable(data, headerSize, numChunks)
	if err != nil {
		return nil, fmt.Errorf("midx: verify %s: %w", path, err)
	}
	offsets := make(map[chunkID]int64, len(entries))
	nextOffset := make(map[chunkID]int64, len(entries))
	for i, e := range entries[:len(entries)-1] {
		offsets[e.id] = e.offset
		if i+1 < len(entries) {
			nextOffset[e.id] = entries[i+1].offset
		} else {
			nextOffset[e.id] = size - hashLen
		}
	}
	fanoutOff, ok := offsets[chunkIDOIDFanout]
	if !ok {
		return nil, fmt.Errorf("midx: verify %s: missing OID Fanout chunk", path)
	}
	lookupOff, ok := offsets[chunkIDOIDLookup]
	if !ok {
		return nil, fmt.Errorf("midx: verify %s: missing OID Lookup chunk", path)
	}
	offOff, ok := offsets[chunkIDObjectOffsets]
	if !ok {
		return nil, fmt.Errorf("midx: verify %s: missing Object Offsets chunk", path)
	}
	largeOff, hasLarge := offsets[chunkIDLargeOffsets]
	plooOff := offsets[chunkIDPackNameLookup]
	pnamOff := offsets[chunkIDPackNames]
	pnamEnd := nextOffset[chunkIDPackNames]

	var fanout [fanoutEntries]uint32
	for i := range fanout {
		off := fanoutOff + int64(i)*4
		fanout[i] = ntohl(data[off : off+4])
	}
	n := int(fanout[fanoutEntries-1])

	// Strict ascending order + fan-out correctness.
	oidAt := func(i int) []byte {
		off := lookupOff + int64(i)*hashLen
		return data[off : off+hashLen]
	}
	counts := make([]int, fanoutEntries)
	for i := 0; i < n; i++ {
		oid := oidAt(i)
		counts[oid[0]]++
		if i > 0 && bytes.Compare(oidAt(i-1), oid) >= 0 {
			add(Violation{KindOrder, fmt.Sprintf("OID Lookup entry %d is not strictly greater than entry %d", i, i-1)})
		}
	}
	cum := 0
	for b := 0; b < fanoutEntries; b++ {
		cum += counts[b]
		if int(fanout[b]) != cum {
			add(Violation{KindFanout, fmt.Sprintf("fanout[%d] = %d, want %d", b, fanout[b], cum)})
		}
	}

	// Pack names, strictly ascending.
	packNameOffsets := make([]uint32, packCount)
	for i := 0; i < packCount; i++ {
		off := plooOff + int64(i)*4
		packNameOffsets[i] = ntohl(data[off : off+4])
	}
	packNames := make([]string, packCount)
	for i, start := range packNameOffsets {
		nameStart := pnamOff + int64(start)
		end := bytes.IndexByte(data[nameStart:pnamEnd], 0)
		if end == -1 {
			return nil, fmt.Errorf("midx: verify %s: pack names: unterminated entry %d", path, i)
		}
		packNames[i] = string(data[nameStart : nameStart+int64(end)])
	}
	for i := 1; i < len(packNames); i++ {
		if packNames[i-1] >= packNames[i] {
			add(Violation{KindOrder, fmt.Sprintf("pack names entry %d (%q) is not strictly greater than entry %d (%q)", i, packNames[i], i-1, packNames[i-1])})
		}
	}

	decodeOffset := func(i int) (packID uint32, packOffset int64) {
		off := offOff + int64(i)*8
		buf := data[off : off+8]
		packID = ntohl(buf[:4])
		word := ntohl(buf[4:])
		if word&largeOffsetEscapeBit == 0 {
			return packID, int64(word)
		}
		idx := word &^ largeOffsetEscapeBit
		if !hasLarge {
			return packID, -1
		}
		loff := largeOff + int64(idx)*8
		return packID, int64(ntohll(data[loff : loff+8]))
	}

	// Cross-check each entry against its pack's own index: one errgroup
	// goroutine per entry, at most concurrency of them at a time, sharing
	// a cache of opened pack indexes.
	var mu sync.Mutex
	g, _ := errgroup.WithContext(context.Background())
	packIdxCache := make(map[uint32]*packfile.Index)
	var cacheMu sync.Mutex
	loadPackIndex := func(packID uint32) (*packfile.Index, error) {
		cacheMu.Lock()
		defer cacheMu.Unlock()
		if idx, ok := packIdxCache[packID]; ok {
			return idx, nil
		}
		if int(packID) >= len(packNames) {
			return nil, fmt.Errorf("pack id %d out of range", packID)
		}
		idxPath := filepath.Join(packDir, packNames[packID]+".idx")
		f, err := os.Open(idxPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		idx, err := packfile.ReadIndex(f)
		if err != nil {
			return nil, err
		}
		packIdxCache[packID] = idx
		return idx, nil
	}

	const concurrency = 8
	sem := make(chan struct{}, concurrency)
	for i := 0; i < n; i++ {
		i := i
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			var oid OID
			copy(oid[:], oidAt(i))
			packID, packOffset := decodeOffset(i)
			idx, err := loadPackIndex(packID)
			if err != nil {
				mu.Lock()
				add(Violation{KindStalePack, fmt.Sprintf("entry %d (%v): pack %q: %v", i, oid, safePackName(packNames, packID), err)})
				mu.Unlock()
				return nil
			}
			pos := idx.FindID(oid)
			if pos == -1 {
				mu.Lock()
				add(Violation{KindOffsetMismatch, fmt.Sprintf("entry %d (%v): not present in pack %q index", i, oid, packNames[packID])})
				mu.Unlock()
				return nil
			}
			if idx.Offsets[pos] != packOffset {
				mu.Lock()
				add(Violation{KindOffsetMismatch, fmt.Sprintf("entry %d (%v): midx offset %d, pack index offset %d", i, oid, packOffset, idx.Offsets[pos])})
				mu.Unlock()
			}
			return nil
		})
	}
	// errgroup.Go's functions never return a non-nil error above (violations
	// are reported, not propagated as failures), so Wait only surfaces a
	// genuine programming error.
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("midx: verify %s: %w", path, err)
	}

	return report, nil
}

func safePackName(names []string, packID uint32) string {
	if int(packID) < len(names) {
		return names[packID]
	}
	return fmt.Sprintf("<pack %d>", packID)
}
