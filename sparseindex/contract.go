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
	"errors"
	"strings"

	"gg-scm.io/pkg/gitmidx/object"
)

// ErrNonConePatterns is returned by Contract when the sparse-index
// representation is requested but the active pattern list is not
// restricted to cone mode. Unlike every other precondition failure,
// this one is a user error, not a benign skip: the contractor has no
// well-defined behavior for an arbitrary glob pattern list.
var ErrNonConePatterns = errors.New("sparseindex: contract: sparse index requires cone-mode patterns")

// Contract collapses every subtree of idx that lies entirely outside
// the sparse-checkout cone described by matcher into a single
// sparse-directory entry, guided by root.
//
// It reports converted=false with a nil error for every precondition
// that is benign (sparse-checkout disabled, split index, sparse-index
// not gated on, invalid cache tree, or an index that is already sparse
// — making Contract idempotent). A non-cone pattern list combined with
// a gated-on sparse index is the one precondition failure that is a
// genuine error, reported as ErrNonConePatterns.
func Contract(idx *Index, root *CacheNode, matcher Matcher, gate GateConfig) (converted bool, err error) {
	if idx.Sparse {
		return false, nil
	}
	if !gate.SparseCheckout {
		return false, nil
	}
	if idx.SplitIndex {
		return false, nil
	}
	if !gate.Effective() {
		return false, nil
	}
	if !gate.ConeMode {
		return false, ErrNonConePatterns
	}
	if !root.Valid() {
		// Cache-tree update failed: benign "did not convert".
		return false, nil
	}

	idx.Entries = contractSpan(root, matcher, idx.Entries)
	idx.Sparse = false
	for _, e := range idx.Entries {
		if e.IsSparseDir() {
			idx.Sparse = true
			break
		}
	}
	idx.CacheTreeValid = false
	idx.FSMonitorToken = nil
	return true, nil
}

// contractSpan returns the contracted form of entries, which must be
// exactly node's span.
func contractSpan(node *CacheNode, matcher Matcher, entries []*Entry) []*Entry {
	if matcher.Inside(node.Path) {
		return descendChildren(node, matcher, entries)
	}
	if spanCollapsible(entries) {
		return []*Entry{sparseDirEntry(node)}
	}
	// Collapse candidate failed its conditions: the entire span is
	// emitted verbatim. Sibling subtrees within this failed span do not
	// get a second, independent chance to collapse on their own (see
	// DESIGN.md for why a literal reading of "recurse into children"
	// here would wrongly let a clean sibling collapse).
	return entries
}

// descendChildren walks entries (node's full span) left to right. At
// each position it asks the cache tree, by name, whether the entry's
// next path component is one of node's children; if so, the child's
// entire contiguous sub-span is handed to contractSpan and skipped in
// one jump, otherwise the entry is a residual direct file and is
// emitted verbatim.
func descendChildren(node *CacheNode, matcher Matcher, entries []*Entry) []*Entry {
	out := make([]*Entry, 0, len(entries))
	for i := 0; i < len(entries); {
		if name, isDir := nextComponent(node.Path, entries[i].Path); isDir {
			if ci := node.childNamed(name); ci >= 0 {
				child := node.Children[ci]
				childSpan := entries[i : i+child.EntryCount]
				out = append(out, contractSpan(child, matcher, childSpan)...)
				i += child.EntryCount
				continue
			}
		}
		out = append(out, entries[i])
		i++
	}
	return out
}

// nextComponent reports the path component of path immediately below
// parent, and whether that component is itself a directory (i.e.
// path has further components beneath it).
func nextComponent(parent, path string) (name string, isDir bool) {
	rest := path
	if parent != "" {
		rest = path[len(parent)+1:]
	}
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		return rest[:j], true
	}
	return rest, false
}

// spanCollapsible reports whether every entry in a span qualifies for
// collapse: no merge-conflict stage, no submodule link, skip-worktree
// set.
func spanCollapsible(entries []*Entry) bool {
	for _, e := range entries {
		if e.Stage != 0 || e.IsSubmodule() || !e.SkipWorktree {
			return false
		}
	}
	return true
}

func sparseDirEntry(node *CacheNode) *Entry {
	return &Entry{
		Path:         node.Path + "/",
		Mode:         object.ModeDir,
		OID:          node.OID,
		SkipWorktree: true,
	}
}
