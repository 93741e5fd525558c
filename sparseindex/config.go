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

import "os"

// GateConfig is the sparse-checkout/sparse-index configuration surface
// consumed from collaborators: the pattern-list parser, the repository
// configuration store, and the on-disk repository-format-extension
// marker.
type GateConfig struct {
	// SparseCheckout is the repository's "core.sparseCheckout" switch.
	SparseCheckout bool
	// ConeMode is "core.sparseCheckoutCone": whether the pattern list is
	// restricted to the hierarchical directory-inclusion subset the
	// contractor requires, as opposed to arbitrary gitignore-style globs.
	ConeMode bool
	// SparseIndexConfig is the "index.sparse" configuration key.
	SparseIndexConfig bool
	// RepoExtension is whether the repository-format-extension marker
	// for sparse index is present on disk.
	RepoExtension bool
}

// sparseIndexTestEnv is the name of the environment variable that can
// force the sparse-index gate on or off, overriding both the repository
// extension and the configuration key. Read via a function (not a
// package-level var capturing os.Getenv at init) so tests can set and
// unset it around a single call.
const sparseIndexTestEnv = "SPARSE_INDEX_TEST"

// Effective resolves whether the sparse-index representation is
// currently enabled, applying the documented precedence: the
// SPARSE_INDEX_TEST environment override, if set, wins outright; absent
// that, the repository-format-extension marker wins; absent that, the
// configuration key decides.
func (g GateConfig) Effective() bool {
	switch os.Getenv(sparseIndexTestEnv) {
	case "1":
		return true
	case "0":
		return false
	}
	if g.RepoExtension {
		return true
	}
	return g.SparseIndexConfig
}

// Matcher decides, for a given directory path, whether that path lies
// inside the sparse-checkout cone (MUST be materialized) or outside it
// (a collapse candidate). Pattern-list parsing itself is an external
// collaborator; Matcher is the only surface the contractor needs from
// it.
type Matcher interface {
	// Inside reports whether path (a directory, no trailing slash,
	// except the root which is "") is inside the sparse cone.
	Inside(path string) bool
}
