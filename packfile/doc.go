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
Package packfile reads and writes the per-pack index format (.idx): the
sorted-OID, fan-out, and offset tables that locate an object inside one
packfile. This is the per-pack counterpart that a multi-pack index
aggregates across many packs; reading and writing packfile object data
itself is outside this package.
*/
package packfile
