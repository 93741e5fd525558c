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

func TestGateConfigPrecedence(t *testing.T) {
	tests := []struct {
		name string
		env  string // "" means unset
		gate GateConfig
		want bool
	}{
		{"config key alone", "", GateConfig{SparseIndexConfig: true}, true},
		{"config key alone, off", "", GateConfig{SparseIndexConfig: false}, false},
		{"repo extension overrides config", "", GateConfig{RepoExtension: true, SparseIndexConfig: false}, true},
		{"env override forces on", "1", GateConfig{RepoExtension: false, SparseIndexConfig: false}, true},
		{"env override forces off", "0", GateConfig{RepoExtension: true, SparseIndexConfig: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.env == "" {
				t.Setenv(sparseIndexTestEnv, "")
				// t.Setenv(sparseIndexTestEnv, "") still sets the var to an empty string,
				// which Effective must treat the same as unset.
			} else {
				t.Setenv(sparseIndexTestEnv, tt.env)
			}
			if got := tt.gate.Effective(); got != tt.want {
				t.Errorf("Effective() = %t, want %t", got, tt.want)
			}
		})
	}
}
