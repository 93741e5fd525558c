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
	"testing"

	"gg-scm.io/pkg/gitmidx/object"
)

// coneMatcher is a minimal Matcher: a fixed set of directories counted
// as inside the cone. Root ("") is always inside, matching the
// convention that contraction never collapses the whole index.
type coneMatcher map[string]bool

func (m coneMatcher) Inside(path string) bool {
	return path == "" || m[path]
}

// s4Tree builds the cache tree for a full index of paths a, b/c, b/d,
// b/e/f.
func s4Tree() *CacheNode {
	e := NewCacheNode("b/e", oidFromByte(0x03), 1, nil)
	b := NewCacheNode("b", oidFromByte(0x02), 3, []*CacheNode{e})
	return NewCacheNode("", oidFromByte(0x01), 4, []*CacheNode{b})
}

func s4Entries(bdStage int) []*Entry {
	return []*Entry{
		{Path: "a", Mode: object.ModePlain, SkipWorktree: true},
		{Path: "b/c", Mode: object.ModePlain, SkipWorktree: true},
		{Path: "b/d", Mode: object.ModePlain, SkipWorktree: true, Stage: bdStage},
		{Path: "b/e/f", Mode: object.ModePlain, SkipWorktree: true},
	}
}

func paths(entries []*Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestContractS4(t *testing.T) {
	idx := &Index{Entries: s4Entries(0)}
	gate := GateConfig{SparseCheckout: true, ConeMode: true, SparseIndexConfig: true}
	matcher := coneMatcher{"a": true}

	converted, err := Contract(idx, s4Tree(), matcher, gate)
	if err != nil {
		t.Fatal(err)
	}
	if !converted {
		t.Fatal("Contract reported converted = false")
	}
	got := paths(idx.Entries)
	want := []string{"a", "b/"}
	if !stringsEq(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
	if !idx.Entries[1].IsSparseDir() {
		t.Error("b/ entry is not a sparse-directory entry")
	}
	if idx.Entries[1].OID != oidFromByte(0x02) {
		t.Errorf("b/ OID = %x, want the cache-tree OID for b", idx.Entries[1].OID)
	}
	if !idx.Sparse {
		t.Error("idx.Sparse = false after a successful contraction")
	}
}

// TestContractS5 covers scenario S5: b/d has a merge-conflict stage, so
// b/ must not collapse, and — per the resolved reading of step 3 — the
// sibling subtree b/e must not independently collapse either; the
// entire b span is emitted verbatim.
func TestContractS5(t *testing.T) {
	idx := &Index{Entries: s4Entries(2)}
	gate := GateConfig{SparseCheckout: true, ConeMode: true, SparseIndexConfig: true}
	matcher := coneMatcher{"a": true}

	if _, err := Contract(idx, s4Tree(), matcher, gate); err != nil {
		t.Fatal(err)
	}
	got := paths(idx.Entries)
	want := []string{"a", "b/c", "b/d", "b/e/f"}
	if !stringsEq(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
}

func TestContractIdempotent(t *testing.T) {
	idx := &Index{Entries: s4Entries(0), Sparse: true}
	gate := GateConfig{SparseCheckout: true, ConeMode: true, SparseIndexConfig: true}
	before := append([]*Entry(nil), idx.Entries...)

	converted, err := Contract(idx, s4Tree(), coneMatcher{}, gate)
	if err != nil {
		t.Fatal(err)
	}
	if converted {
		t.Error("Contract reported converted = true on an already-sparse index")
	}
	if !stringsEq(paths(idx.Entries), paths(before)) {
		t.Errorf("entries mutated on no-op contraction: %v", paths(idx.Entries))
	}
}

func TestContractCollapseSafetySubmodule(t *testing.T) {
	entries := s4Entries(0)
	entries[2].Mode = object.ModeGitlink // b/d becomes a submodule link
	idx := &Index{Entries: entries}
	gate := GateConfig{SparseCheckout: true, ConeMode: true, SparseIndexConfig: true}

	if _, err := Contract(idx, s4Tree(), coneMatcher{"a": true}, gate); err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b/c", "b/d", "b/e/f"}
	if got := paths(idx.Entries); !stringsEq(got, want) {
		t.Fatalf("paths = %v, want %v (submodule must block collapse)", got, want)
	}
}

func TestContractBenignSkips(t *testing.T) {
	tree := s4Tree()
	cases := []struct {
		name string
		gate GateConfig
	}{
		{"sparse checkout disabled", GateConfig{SparseCheckout: false}},
		{"sparse index not gated on", GateConfig{SparseCheckout: true, ConeMode: true}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			idx := &Index{Entries: s4Entries(0)}
			converted, err := Contract(idx, tree, coneMatcher{"a": true}, c.gate)
			if err != nil {
				t.Fatal(err)
			}
			if converted {
				t.Error("Contract reported converted = true, want benign skip")
			}
		})
	}

	t.Run("split index", func(t *testing.T) {
		idx := &Index{Entries: s4Entries(0), SplitIndex: true}
		gate := GateConfig{SparseCheckout: true, ConeMode: true, SparseIndexConfig: true}
		converted, err := Contract(idx, tree, coneMatcher{"a": true}, gate)
		if err != nil {
			t.Fatal(err)
		}
		if converted {
			t.Error("Contract reported converted = true for a split index")
		}
	})

	t.Run("invalid cache tree", func(t *testing.T) {
		idx := &Index{Entries: s4Entries(0)}
		gate := GateConfig{SparseCheckout: true, ConeMode: true, SparseIndexConfig: true}
		converted, err := Contract(idx, nil, coneMatcher{"a": true}, gate)
		if err != nil {
			t.Fatal(err)
		}
		if converted {
			t.Error("Contract reported converted = true with a nil cache tree")
		}
	})
}

// TestContractRefusesOnInvalidDescendant builds a tree whose root and
// immediate child are individually valid but whose grandchild failed to
// (re)validate, and asserts that Contract refuses to collapse any of it
// rather than trusting the stale subtree.
func TestContractRefusesOnInvalidDescendant(t *testing.T) {
	e := NewInvalidCacheNode("b/e", 1)
	b := NewCacheNode("b", oidFromByte(0x02), 3, []*CacheNode{e})
	root := NewCacheNode("", oidFromByte(0x01), 4, []*CacheNode{b})
	if b.Valid() {
		t.Fatal("b reports Valid() = true despite an invalid child")
	}
	if root.Valid() {
		t.Fatal("root reports Valid() = true despite an invalid descendant")
	}

	idx := &Index{Entries: s4Entries(0)}
	gate := GateConfig{SparseCheckout: true, ConeMode: true, SparseIndexConfig: true}
	before := append([]*Entry(nil), idx.Entries...)

	converted, err := Contract(idx, root, coneMatcher{"a": true}, gate)
	if err != nil {
		t.Fatal(err)
	}
	if converted {
		t.Error("Contract reported converted = true with an invalid descendant in the cache tree")
	}
	if !stringsEq(paths(idx.Entries), paths(before)) {
		t.Errorf("entries mutated despite refusing to convert: %v", paths(idx.Entries))
	}
}

func TestContractNonConeIsUserError(t *testing.T) {
	idx := &Index{Entries: s4Entries(0)}
	gate := GateConfig{SparseCheckout: true, ConeMode: false, SparseIndexConfig: true}
	_, err := Contract(idx, s4Tree(), coneMatcher{"a": true}, gate)
	if err != ErrNonConePatterns {
		t.Errorf("err = %v, want ErrNonConePatterns", err)
	}
}

func stringsEq(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
