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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/exp/mmap"

	"gg-scm.io/pkg/gitmidx/packfile"
)

// Reader consults a memory-mapped MIDX file for object-to-pack lookups. It
// owns the memory map, the underlying file descriptor, and the array of
// lazily-opened pack handles; all three are released together by Close.
//
// A Reader's lookup path is safe for concurrent use once constructed: pack
// handles are installed through a per-slot sync.Once so that no caller ever
// observes a torn (partially-initialized) handle.
type Reader struct {
	ra   *mmap.ReaderAt
	size int64

	packDir   string
	packNames []string // sorted, post-sort order; index is the on-disk pack id

	oidFanoutOff     int64
	oidLookupOff     int64
	objectOffsetsOff int64
	largeOffsetsOff  int64
	hasLargeOffsets  bool

	n       int // distinct OID count
	fanout  [fanoutEntries]uint32

	mu    sync.Mutex
	packs []*packSlot
}

type packSlot struct {
	once sync.Once
	idx  *packfile.Index
	err  error
}

// Open memory-maps the MIDX file at path and validates its header and
// chunk table. packDir is the directory pack files referenced by the MIDX
// are resolved against (normally the same directory the MIDX itself lives
// in).
func Open(path string, packDir string) (*Reader, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("midx: open %s: %w", path, err)
	}
	r, err := newReader(ra, packDir)
	if err != nil {
		ra.Close()
		return nil, fmt.Errorf("midx: open %s: %w", path, err)
	}
	return r, nil
}

func newReader(ra *mmap.ReaderAt, packDir string) (*Reader, error) {
	size := int64(ra.Len())
	if size < headerSize+chunkTableEntrySize+hashLen {
		return nil, fmt.Errorf("file too short")
	}
	header := make([]byte, headerSize)
	if _, err := ra.ReadAt(header, 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if !bytes.Equal(header[0:4], magic[:]) {
		return nil, fmt.Errorf("bad magic")
	}
	if v := ntohl(header[4:8]); v != version {
		return nil, fmt.Errorf("unsupported version %#x", v)
	}
	if header[8] != hashVersion {
		return nil, fmt.Errorf("unsupported hash version %d", header[8])
	}
	if header[9] != hashLen {
		return nil, fmt.Errorf("unsupported hash length %d", header[9])
	}
	if header[10] != 0 {
		return nil, fmt.Errorf("unsupported base-midx count %d", header[10])
	}
	numChunks := int(header[11])
	packCount := int(ntohl(header[12:16]))

	data := make([]byte, size)
	if _, err := ra.ReadAt(data, 0); err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	entries, err := parseChunkTable(data, headerSize, numChunks)
	if err != nil {
		return nil, err
	}
	if entries[len(entries)-1].offset != size-hashLen {
		return nil, fmt.Errorf("chunk table: sentinel offset does not match trailing hash position")
	}

	r := &Reader{ra: ra, size: size, packDir: packDir}
	offsets := make(map[chunkID]chunkTableEntry, len(entries))
	for _, e := range entries[:len(entries)-1] {
		offsets[e.id] = e
	}
	nextOffset := func(id chunkID, idx int) int64 {
		if idx+1 < len(entries) {
			return entries[idx+1].offset
		}
		return size - hashLen
	}
	plooOff, haveP := offsets[chunkIDPackNameLookup]
	pnamOff, haveN := offsets[chunkIDPackNames]
	fanoutEntry, haveF := offsets[chunkIDOIDFanout]
	lookupEntry, haveL := offsets[chunkIDOIDLookup]
	offEntry, haveO := offsets[chunkIDObjectOffsets]
	if !haveP || !haveN || !haveF || !haveL || !haveO {
		return nil, fmt.Errorf("missing a required chunk")
	}
	r.oidFanoutOff = fanoutEntry.offset
	r.oidLookupOff = lookupEntry.offset
	r.objectOffsetsOff = offEntry.offset
	if loffEntry, ok := offsets[chunkIDLargeOffsets]; ok {
		r.largeOffsetsOff = loffEntry.offset
		r.hasLargeOffsets = true
	}

	for i := range r.fanout {
		off := fanoutEntry.offset + int64(i)*4
		r.fanout[i] = ntohl(data[off : off+4])
	}
	r.n = int(r.fanout[fanoutEntries-1])

	packNameOffsets := make([]uint32, packCount)
	for i := 0; i < packCount; i++ {
		off := plooOff.offset + int64(i)*4
		packNameOffsets[i] = ntohl(data[off : off+4])
	}
	r.packNames = make([]string, packCount)
	pnamIdx := indexOf(entries, pnamOff.id)
	pnamEnd := nextOffset(pnamOff.id, pnamIdx)
	for i, start := range packNameOffsets {
		nameStart := pnamOff.offset + int64(start)
		end := bytes.IndexByte(data[nameStart:pnamEnd], 0)
		if end == -1 {
			return nil, fmt.Errorf("pack names: unterminated entry %d", i)
		}
		r.packNames[i] = string(data[nameStart : nameStart+int64(end)])
	}
	for i := 1; i < len(r.packNames); i++ {
		if r.packNames[i-1] >= r.packNames[i] {
			return nil, fmt.Errorf("pack names: not strictly ascending")
		}
	}

	r.packs = make([]*packSlot, packCount)
	for i := range r.packs {
		r.packs[i] = &packSlot{}
	}
	return r, nil
}

func indexOf(entries []chunkTableEntry, id chunkID) int {
	for i, e := range entries {
		if e.id == id {
			return i
		}
	}
	return -1
}

// Close unmaps the file and releases any opened pack handles.
func (r *Reader) Close() error {
	return r.ra.Close()
}

// Len returns the number of distinct OIDs recorded in the MIDX.
func (r *Reader) Len() int {
	return r.n
}

// Lookup returns the pack id and in-pack offset recorded for oid, or ok=false
// if oid is not present.
func (r *Reader) Lookup(oid OID) (packID uint32, offset int64, ok bool) {
	lo, hi := r.fanoutBounds(oid[0])
	i := lo + sort.Search(hi-lo, func(i int) bool {
		return bytes.Compare(r.oidAt(lo+i), oid[:]) >= 0
	})
	if i >= hi || !bytes.Equal(r.oidAt(i), oid[:]) {
		return 0, 0, false
	}
	packID, offset = r.decodeOffset(i)
	return packID, offset, true
}

// Nth returns the i'th (in sorted-OID order) entry directly.
func (r *Reader) Nth(i int) (oid OID, packID uint32, offset int64, err error) {
	if i < 0 || i >= r.n {
		return OID{}, 0, 0, fmt.Errorf("midx: nth(%d): out of range [0,%d)", i, r.n)
	}
	copy(oid[:], r.oidAt(i))
	packID, offset = r.decodeOffset(i)
	return oid, packID, offset, nil
}

// ContainsPack reports whether name appears in the MIDX's Pack Names chunk.
func (r *Reader) ContainsPack(name string) bool {
	i := sort.SearchStrings(r.packNames, name)
	return i < len(r.packNames) && r.packNames[i] == name
}

// Pack lazily opens and memoizes the packfile.Index for the given post-sort
// pack id, reading packDir/<name>.idx. If the backing file is missing or
// unreadable, Pack returns an error; callers performing a Lookup should
// treat that as a stale reference and fall back to another source rather
// than surfacing a hard failure.
func (r *Reader) Pack(packID uint32) (*packfile.Index, error) {
	if int(packID) >= len(r.packs) {
		return nil, fmt.Errorf("midx: pack id %d out of range", packID)
	}
	slot := r.packs[packID]
	slot.once.Do(func() {
		path := filepath.Join(r.packDir, r.packNames[packID]+".idx")
		f, err := os.Open(path)
		if err != nil {
			slot.err = fmt.Errorf("midx: open pack index %s: %w", path, err)
			return
		}
		defer f.Close()
		idx, err := packfile.ReadIndex(f)
		if err != nil {
			slot.err = fmt.Errorf("midx: read pack index %s: %w", path, err)
			return
		}
		slot.idx = idx
	})
	return slot.idx, slot.err
}

func (r *Reader) oidAt(i int) []byte {
	off := r.oidLookupOff + int64(i)*hashLen
	return r.dataAt(off, hashLen)
}

func (r *Reader) decodeOffset(i int) (packID uint32, offset int64) {
	off := r.objectOffsetsOff + int64(i)*8
	buf := r.dataAt(off, 8)
	packID = ntohl(buf[:4])
	word := ntohl(buf[4:])
	if word&largeOffsetEscapeBit == 0 {
		return packID, int64(word)
	}
	idx := word &^ largeOffsetEscapeBit
	loff := r.largeOffsetsOff + int64(idx)*8
	lbuf := r.dataAt(loff, 8)
	return packID, int64(ntohll(lbuf))
}

func (r *Reader) fanoutBounds(firstByte byte) (lo, hi int) {
	if firstByte == 0 {
		lo = 0
	} else {
		lo = int(r.fanout[firstByte-1])
	}
	hi = int(r.fanout[firstByte])
	return lo, hi
}

func (r *Reader) dataAt(off int64, n int) []byte {
	buf := make([]byte, n)
	if _, err := r.ra.ReadAt(buf, off); err != nil {
		// Open checked the chunk table against the file size but not the
		// fan-out counts against the chunk sizes, so a read failure here
		// means a count or index read from the file points past the
		// mapping, or the underlying file changed out from under it.
		panic(fmt.Sprintf("midx: short read at offset %d: %v", off, err))
	}
	return buf
}
