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

package sparseindex

import (
	"sort"
	"strings"

	"gg-scm.io/pkg/gitmidx/githash"
	"gg-scm.io/pkg/gitmidx/object"
)

// Entry is a single worktree index entry. Regular and sparse-directory
// entries are variants of this one type; the discriminator is structural
// (IsSparseDir), not a separate tag.
type Entry struct {
	// Path is the entry's sort key. A sparse-directory entry's path ends
	// in "/".
	Path string
	Mode object.Mode
	OID  githash.SHA1
	// SkipWorktree marks a path as tracked but not materialized on disk.
	SkipWorktree bool
	// Stage is 0 for a normally-merged entry, and 1-3 for one side of an
	// unresolved merge conflict.
	Stage int
}

// IsSparseDir reports whether e stands in for an entire collapsed
// subtree: its path denotes a directory, its mode is a tree, and its
// skip-worktree bit is set.
func (e *Entry) IsSparseDir() bool {
	return strings.HasSuffix(e.Path, "/") && e.Mode.IsDir() && e.SkipWorktree
}

// IsSubmodule reports whether e is a Git submodule link, which can never
// be collapsed into (or stand in as) a sparse-directory entry.
func (e *Entry) IsSubmodule() bool {
	return e.Mode == object.ModeGitlink
}

// Index is a working-tree index: a path-sorted array of entries, plus the
// additional state that needs to travel with it across a contraction or
// expansion.
type Index struct {
	// Entries is kept in canonical Git path sort order (see
	// object.Tree.Less) at all times.
	Entries []*Entry
	// Sparse is set iff Entries contains at least one sparse-directory
	// entry.
	Sparse bool
	// SplitIndex marks a split index, which Contract always declines to
	// touch.
	SplitIndex bool
	// CacheTreeValid is cleared whenever Entries changes shape in a way
	// that invalidates any cached cache-tree summary, signaling that it
	// must be rebuilt before the index is next saved.
	CacheTreeValid bool
	// FSMonitorToken is cleared on contraction, since a collapsed index's
	// path domain no longer matches whatever the filesystem monitor was
	// watching.
	FSMonitorToken []byte

	// expanding is the reentrancy guard for ExpandPath: a field on the
	// index value itself, not module-level state, per the design note
	// that the original's process-wide registry should instead be owned
	// state threaded by reference.
	expanding bool
}

// find returns the index of the entry with the given path, or -1 if no
// such entry exists. Entries must be sorted.
//
// Unlike a tree object, a flat index never needs the "pretend directories
// end in a slash" comparator: a sparse-directory entry's Path already has
// the trailing "/" baked in, so plain lexicographic comparison of Path
// reproduces canonical index order directly.
func (idx *Index) find(path string) int {
	i := sort.Search(len(idx.Entries), func(i int) bool {
		return idx.Entries[i].Path >= path
	})
	if i < len(idx.Entries) && idx.Entries[i].Path == path {
		return i
	}
	return -1
}
