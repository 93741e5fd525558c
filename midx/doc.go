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
Package midx reads and writes multi-pack index files: a single file that
aggregates the object-id-to-(pack, offset) mappings of many packfiles so
that a lookup does not need to consult each pack's own index in turn.

A MIDX file is a chunked binary format: a 16-byte header, a lookup table of
chunk ids and offsets, the chunks themselves, and a trailing checksum. See
Build for how a file is produced and Reader for how one is consulted.
Verify independently re-derives every on-disk invariant without trusting a
Reader's cached state, for use by consistency checking tools such as
cmd/midx-fsck.
*/
package midx
