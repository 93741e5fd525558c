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
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"gg-scm.io/pkg/gitmidx/githash"
	"gg-scm.io/pkg/gitmidx/object"
)

// TreeReader reads a tree object by its identifier. It is the
// expander's only collaborator with the object store; tree parsing
// itself is object.ParseTree's job once the bytes are in hand.
type TreeReader interface {
	ReadTree(oid githash.SHA1) (object.Tree, error)
}

var expandLog = logrus.WithField("component", "sparseindex.expand")

// ExpandAll replaces every sparse-directory entry in idx with the
// ordinary file entries of the subtree it stands in for, recursively,
// and clears idx.Sparse. Regular entries are carried over unchanged.
//
// A sparse-directory entry whose skip-worktree bit is unset is a data
// inconsistency: ExpandAll warns and proceeds rather than silently
// repairing it, since it is ambiguous whether the missing bit or the
// directory collapse itself is the corrupt half.
func ExpandAll(idx *Index, trees TreeReader) error {
	out := make([]*Entry, 0, len(idx.Entries)*3/2+1)
	for _, e := range idx.Entries {
		// Not IsSparseDir: that also requires SkipWorktree, and an entry
		// lacking it must still be expanded (with the warning below).
		if !strings.HasSuffix(e.Path, "/") || !e.Mode.IsDir() {
			out = append(out, e)
			continue
		}
		if !e.SkipWorktree {
			expandLog.WithField("path", e.Path).Warn("sparse-directory entry has skip-worktree unset")
		}
		dir := e.Path[:len(e.Path)-1]
		expanded, err := expandTree(trees, dir, e.OID)
		if err != nil {
			return fmt.Errorf("sparseindex: expand %s: %w", e.Path, err)
		}
		out = append(out, expanded...)
	}
	idx.Entries = out
	idx.Sparse = false
	idx.CacheTreeValid = false
	return nil
}

// expandTree recursively materializes every blob under the tree
// identified by oid, rooted at dir, as skip-worktree index entries.
func expandTree(trees TreeReader, dir string, oid githash.SHA1) ([]*Entry, error) {
	tree, err := trees.ReadTree(oid)
	if err != nil {
		return nil, err
	}
	var out []*Entry
	for _, te := range tree {
		path := te.Name
		if dir != "" {
			path = dir + "/" + te.Name
		}
		if te.Mode.IsDir() {
			children, err := expandTree(trees, path, te.ObjectID)
			if err != nil {
				return nil, err
			}
			out = append(out, children...)
			continue
		}
		out = append(out, &Entry{
			Path:         path,
			Mode:         te.Mode,
			OID:          te.ObjectID,
			SkipWorktree: true,
		})
	}
	return out, nil
}

// ExpandPath performs a targeted expand: it materializes path (and
// every sibling under the same collapsed subtree) as an ordinary entry
// by running ExpandAll, which expands every sparse-directory entry in
// idx, not only the one that covers path.
//
// It is a no-op if path is already present, and an error if path is
// not covered by any sparse-directory entry. A targeted expand invoked
// while idx is already in the middle of an expand is a no-op: the
// pattern-match and tree-read machinery the expander depends on may
// themselves consult the index mid-expand, and without this guard that
// re-entry would recurse. The guard is a field on *Index rather than
// module-wide state, so it scopes to one index instance.
func ExpandPath(idx *Index, trees TreeReader, path string) error {
	if idx.expanding {
		return nil
	}
	if idx.find(path) >= 0 {
		return nil
	}
	if findSparseDirAncestor(idx.Entries, path) < 0 {
		return fmt.Errorf("sparseindex: expand path %q: not covered by any sparse-directory entry", path)
	}
	idx.expanding = true
	defer func() { idx.expanding = false }()
	return ExpandAll(idx, trees)
}

// findSparseDirAncestor returns the index of the sparse-directory entry
// that covers path, or -1 if none does.
func findSparseDirAncestor(entries []*Entry, path string) int {
	for i, e := range entries {
		if !e.IsSparseDir() {
			continue
		}
		if len(path) > len(e.Path) && path[:len(e.Path)] == e.Path {
			return i
		}
	}
	return -1
}
