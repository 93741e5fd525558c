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
)

// CacheNode is one node of a cache tree: a cached summary of the tree
// object that a contiguous span of index entries hashes to. The node at
// path P covers entries [start, start+EntryCount) of the index it was
// built against, where start is implied by the position of P's parent
// plus the EntryCount of P's preceding siblings.
//
// Children are kept in the same path order as the index entries they
// summarize, and their spans plus any residual direct-file entries of
// the parent cover the parent's span contiguously.
type CacheNode struct {
	// Path is the subtree's path relative to the index root, without a
	// trailing slash (the root node's Path is "").
	Path string
	// OID is the git-tree-object identifier this node claims to
	// summarize. It is meaningful only if Valid reports true.
	OID githash.SHA1
	// EntryCount is the number of index entries (of any kind, at any
	// depth) this node's subtree spans.
	EntryCount int
	// Children are this node's immediate subdirectories, sorted by Path.
	Children []*CacheNode

	valid bool
}

// Valid reports whether n's OID is known to be the hash of the actual
// tree object for its span, and every descendant is likewise valid. An
// invalid node (or one with an invalid descendant) must not be trusted
// for collapse: its OID may be stale relative to the index entries it
// claims to cover.
func (n *CacheNode) Valid() bool {
	if n == nil {
		return false
	}
	return n.valid
}

// NewCacheNode constructs a cache-tree node, recording the tree OID a
// collaborator has already computed for the given span. It does not
// recompute or check the hash itself, but Valid reports false for the
// returned node if any child is itself invalid, so that invalidity
// propagates all the way up to the root regardless of where in the tree
// it originates.
func NewCacheNode(path string, oid githash.SHA1, entryCount int, children []*CacheNode) *CacheNode {
	sorted := append([]*CacheNode(nil), children...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	return &CacheNode{
		Path:       path,
		OID:        oid,
		EntryCount: entryCount,
		Children:   sorted,
		valid:      allChildrenValid(sorted),
	}
}

// NewInvalidCacheNode constructs a node standing in for a subtree whose
// own tree hash a collaborator failed to (re)compute or verify. Its OID
// is meaningless; Valid reports false for it and for every ancestor
// built from it via NewCacheNode.
func NewInvalidCacheNode(path string, entryCount int) *CacheNode {
	return &CacheNode{
		Path:       path,
		EntryCount: entryCount,
	}
}

func allChildrenValid(children []*CacheNode) bool {
	for _, c := range children {
		if !c.Valid() {
			return false
		}
	}
	return true
}

// childNamed returns the index of the child whose base name (the final
// path component) equals name, or -1 if none matches. Children are
// searched in their stored (sorted) order via binary search.
func (n *CacheNode) childNamed(name string) int {
	i := sort.Search(len(n.Children), func(i int) bool {
		return baseName(n.Children[i].Path) >= name
	})
	if i < len(n.Children) && baseName(n.Children[i].Path) == name {
		return i
	}
	return -1
}

func baseName(path string) string {
	if j := strings.LastIndexByte(path, '/'); j >= 0 {
		return path[j+1:]
	}
	return path
}
