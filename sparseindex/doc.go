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

/*
Package sparseindex transforms a working-tree index between its full form
(one entry per tracked path) and its sparse form (directory-level entries
standing in for entire unselected subtrees).

Contract collapses a full index's subtrees that fall entirely outside a
sparse-checkout cone into single sparse-directory entries, guided by a
cache tree (see the cachetree subpackage-equivalent types in this package).
ExpandAll and ExpandPath reverse the process, either everywhere or for one
targeted path.

The on-disk index format itself, and the pattern-list parser that decides
which paths are inside the cone, are external collaborators: this package
only operates on the in-memory Entry/Index/CacheNode types and the Matcher
interface.
*/
package sparseindex
