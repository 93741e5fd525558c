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

import "gg-scm.io/pkg/gitmidx/githash"

// headerSize is the size in bytes of the fixed MIDX header.
const headerSize = 16

// chunkTableEntrySize is the size in bytes of one (id, offset) record in the
// chunk lookup table, including the sentinel record.
const chunkTableEntrySize = 12

// magic is the 4-byte signature at the start of every MIDX file.
var magic = [4]byte{0x4d, 0x49, 0x44, 0x58} // "MIDX"

// version is the only MIDX format version this package knows how to read or
// write.
const version uint32 = 0x80000001

// hashVersion identifies SHA-1 as the OID hash, the only one this format deals
// in.
const hashVersion = 1

// hashLen is the width in bytes of an OID under hashVersion.
const hashLen = githash.SHA1Size

// Chunk ids, as 4-byte big-endian ASCII.
var (
	chunkIDPackNameLookup = chunkID{'P', 'L', 'O', 'O'}
	chunkIDPackNames      = chunkID{'P', 'N', 'A', 'M'}
	chunkIDOIDFanout      = chunkID{'O', 'I', 'D', 'F'}
	chunkIDOIDLookup      = chunkID{'O', 'I', 'D', 'L'}
	chunkIDObjectOffsets  = chunkID{'O', 'O', 'F', 'F'}
	chunkIDLargeOffsets   = chunkID{'L', 'O', 'F', 'F'}
	chunkIDSentinel       = chunkID{0, 0, 0, 0}
)

// chunkID is a 4-byte chunk identifier.
type chunkID [4]byte

func (id chunkID) String() string {
	return string(id[:])
}

// fanoutEntries is the number of buckets in the OID Fanout chunk: one per
// possible first byte of an OID.
const fanoutEntries = 256

// largeOffsetEscapeBit marks an Object Offsets word as an index into the
// Large Offsets chunk rather than a literal offset.
const largeOffsetEscapeBit = uint32(1) << 31

// maxLiteralOffset is the largest pack offset that can be stored directly in
// an Object Offsets word without an escape into Large Offsets.
const maxLiteralOffset = int64(1)<<31 - 1
