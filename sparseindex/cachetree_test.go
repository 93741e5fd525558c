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

import "testing"

func TestCacheNodeValid(t *testing.T) {
	var nilNode *CacheNode
	if nilNode.Valid() {
		t.Error("nil CacheNode reports Valid() = true")
	}
	n := NewCacheNode("b", oidFromByte(0x01), 3, nil)
	if !n.Valid() {
		t.Error("freshly constructed node reports Valid() = false")
	}
}

func TestCacheNodeChildrenSortedAndFindable(t *testing.T) {
	z := NewCacheNode("b/z", oidFromByte(0x01), 1, nil)
	e := NewCacheNode("b/e", oidFromByte(0x02), 1, nil)
	b := NewCacheNode("b", oidFromByte(0x03), 2, []*CacheNode{z, e})
	if b.Children[0].Path != "b/e" || b.Children[1].Path != "b/z" {
		t.Fatalf("children not sorted: %v, %v", b.Children[0].Path, b.Children[1].Path)
	}
	if i := b.childNamed("e"); i != 0 {
		t.Errorf("childNamed(e) = %d, want 0", i)
	}
	if i := b.childNamed("z"); i != 1 {
		t.Errorf("childNamed(z) = %d, want 1", i)
	}
	if i := b.childNamed("missing"); i != -1 {
		t.Errorf("childNamed(missing) = %d, want -1", i)
	}
}

// oidFromByte mirrors midx's test helper of the same name: a
// same-valued 20-byte OID, convenient for constructing distinguishable
// test identifiers without caring about their actual hash meaning.
func oidFromByte(b byte) (oid [20]byte) {
	for i := range oid {
		oid[i] = b
	}
	return oid
}
