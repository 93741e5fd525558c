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
	"crypto/sha1"
	"fmt"
	"io"

	"gg-scm.io/pkg/gitmidx/githash"
)

// chunkPlan is one planned chunk: its id and its payload length in bytes.
// A builder computes every chunkPlan's length before any bytes are written,
// so that the lookup table can be emitted up front.
type chunkPlan struct {
	id     chunkID
	length int64
}

// chunkWriter streams a MIDX file: the header, the chunk lookup table (with
// offsets derived from a caller-supplied plan), the chunk payloads in order,
// and a trailing rolling-hash checksum.
//
// This mirrors the "begin / append_chunk / finalize" shape described for
// chunk framing: offsets are committed before any chunk payload is written,
// and a mismatch between a chunk's planned and actual length is treated as a
// programming error in the caller, not a recoverable I/O condition.
type chunkWriter struct {
	w io.Writer
	h interface {
		io.Writer
		Sum([]byte) []byte
	}
	plans      []chunkPlan
	offsets    map[chunkID]int64
	nextOffset int64
	cursor     int
}

// beginChunkWriter writes header to w, then the chunk lookup table implied by
// plans (including the terminating sentinel entry), and returns a
// chunkWriter ready to stream each chunk's payload in the order given by
// plans.
func beginChunkWriter(w io.Writer, header []byte, plans []chunkPlan) (*chunkWriter, error) {
	h := sha1.New()
	mw := io.MultiWriter(w, h)
	if _, err := mw.Write(header); err != nil {
		return nil, fmt.Errorf("midx: write header: %w", err)
	}

	cw := &chunkWriter{
		w:       mw,
		h:       h,
		plans:   plans,
		offsets: make(map[chunkID]int64, len(plans)),
	}
	tableSize := int64(len(plans)+1) * chunkTableEntrySize
	offset := int64(len(header)) + tableSize
	var entry [chunkTableEntrySize]byte
	for _, p := range plans {
		cw.offsets[p.id] = offset
		copy(entry[:4], p.id[:])
		htonll(entry[4:], uint64(offset))
		if _, err := mw.Write(entry[:]); err != nil {
			return nil, fmt.Errorf("midx: write chunk table: %w", err)
		}
		offset += p.length
	}
	// Sentinel entry: id 0, offset = trailing hash position.
	copy(entry[:4], chunkIDSentinel[:])
	htonll(entry[4:], uint64(offset))
	if _, err := mw.Write(entry[:]); err != nil {
		return nil, fmt.Errorf("midx: write chunk table: %w", err)
	}
	cw.nextOffset = int64(len(header)) + tableSize
	return cw, nil
}

// appendChunk streams the payload for the next planned chunk by invoking fn
// with a writer that both forwards to the underlying file and feeds the
// trailing checksum. It is an error to call appendChunk out of plan order,
// and it is a structural bug — returned as an error, not a panic, so that
// builder callers can wrap it with context — if fn writes a number of bytes
// different than the chunk's planned length.
func (cw *chunkWriter) appendChunk(id chunkID, fn func(io.Writer) error) error {
	if cw.cursor >= len(cw.plans) {
		return fmt.Errorf("midx: append chunk %s: no chunks left in plan", id)
	}
	want := cw.plans[cw.cursor]
	if want.id != id {
		return fmt.Errorf("midx: append chunk %s: expected %s next", id, want.id)
	}
	counter := &countingWriter{w: cw.w}
	if err := fn(counter); err != nil {
		return fmt.Errorf("midx: append chunk %s: %w", id, err)
	}
	if counter.n != want.length {
		return fmt.Errorf("midx: append chunk %s: structural bug: wrote %d bytes, planned %d", id, counter.n, want.length)
	}
	cw.cursor++
	cw.nextOffset += want.length
	return nil
}

// finalize appends the trailing checksum (the rolling hash over every byte
// written so far) and returns it.
func (cw *chunkWriter) finalize() (githash.SHA1, error) {
	if cw.cursor != len(cw.plans) {
		return githash.SHA1{}, fmt.Errorf("midx: finalize: structural bug: only %d of %d chunks written", cw.cursor, len(cw.plans))
	}
	var sum githash.SHA1
	cw.h.Sum(sum[:0])
	if _, err := cw.w.Write(sum[:]); err != nil {
		return githash.SHA1{}, fmt.Errorf("midx: write trailing checksum: %w", err)
	}
	return sum, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// chunkTableEntry is one decoded record from a MIDX chunk lookup table.
type chunkTableEntry struct {
	id     chunkID
	offset int64
}

// parseChunkTable decodes the numChunks+1 entries of a chunk lookup table
// starting at the given offset within data, validating that offsets are
// strictly increasing and that the table is terminated by the id-0
// sentinel.
func parseChunkTable(data []byte, tableOffset int64, numChunks int) ([]chunkTableEntry, error) {
	entries := make([]chunkTableEntry, numChunks+1)
	for i := range entries {
		start := tableOffset + int64(i)*chunkTableEntrySize
		end := start + chunkTableEntrySize
		if end > int64(len(data)) {
			return nil, fmt.Errorf("midx: chunk table: truncated")
		}
		rec := data[start:end]
		var id chunkID
		copy(id[:], rec[:4])
		off := int64(ntohll(rec[4:]))
		entries[i] = chunkTableEntry{id: id, offset: off}
		if i > 0 && entries[i-1].offset >= entries[i].offset {
			return nil, fmt.Errorf("midx: chunk table: offsets not strictly increasing at entry %d", i)
		}
	}
	if entries[len(entries)-1].id != chunkIDSentinel {
		return nil, fmt.Errorf("midx: chunk table: missing terminating sentinel entry")
	}
	return entries, nil
}
