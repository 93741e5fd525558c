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
	"sort"

	"gg-scm.io/pkg/gitmidx/githash"
)

// OID is the fixed-width object identifier type this package indexes.
type OID = githash.SHA1

// ObjectEntry is one (OID, pack, offset) tuple supplied to Build. PackIndex
// refers to the pre-sort position of the owning pack in the packNames slice
// passed to Build; Build remaps it through the post-sort permutation.
//
// MTime is consulted only to break ties between duplicate OIDs: the entry
// with the smaller MTime survives, so an entry passed with MTime 0 wins
// over any duplicate carrying a later MTime.
type ObjectEntry struct {
	OID       OID
	PackIndex int
	Offset    int64
	MTime     int64
}

// sortPackNames sorts pack filenames lexicographically, returning the
// sorted names and the permutation from pre-sort to post-sort indices.
func sortPackNames(names []string) (sorted []string, perm []int) {
	idx := make([]int, len(names))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		return names[idx[i]] < names[idx[j]]
	})
	sorted = make([]string, len(names))
	perm = make([]int, len(names))
	for post, pre := range idx {
		sorted[post] = names[pre]
		perm[pre] = post
	}
	return sorted, perm
}

// sortAndDedupEntries sorts entries by OID ascending, breaking ties by
// MTime ascending (i.e. older entries sort first), and collapses runs of
// duplicate OIDs down to their first (oldest) member. The input slice is
// not modified; sortAndDedupEntries returns a new, possibly shorter slice.
func sortAndDedupEntries(entries []ObjectEntry) []ObjectEntry {
	sorted := make([]ObjectEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := bytes.Compare(sorted[i].OID[:], sorted[j].OID[:]); c != 0 {
			return c < 0
		}
		return sorted[i].MTime < sorted[j].MTime
	})
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, e := range sorted[1:] {
		if e.OID == out[len(out)-1].OID {
			continue
		}
		out = append(out, e)
	}
	return out
}

// buildFanout computes the 256-entry OID fan-out table for a slice of
// entries already sorted in ascending OID order: fanout[i] is the number of
// entries whose OID's first byte is <= i.
func buildFanout(sorted []ObjectEntry) [fanoutEntries]uint32 {
	var fanout [fanoutEntries]uint32
	bucket := 0
	for i, e := range sorted {
		b := int(e.OID[0])
		for ; bucket < b; bucket++ {
			fanout[bucket] = uint32(i)
		}
	}
	for ; bucket < fanoutEntries; bucket++ {
		fanout[bucket] = uint32(len(sorted))
	}
	return fanout
}
