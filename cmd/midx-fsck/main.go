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

// Command midx-fsck verifies a multi-pack index file against the pack
// indexes it references and reports any violations it finds.
//
// Usage:
//
//	midx-fsck MIDX_PATH [PACK_DIR]
//
// PACK_DIR defaults to the directory MIDX_PATH is in. This command does
// not attempt to reproduce any particular `git multi-pack-index verify`
// flag grammar; it exists to exercise the midx package's verifier
// end-to-end.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"gg-scm.io/pkg/gitmidx/midx"
)

var log = logrus.WithField("component", "midx-fsck")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(os.Stderr, "usage: midx-fsck MIDX_PATH [PACK_DIR]")
		return 2
	}
	midxPath := args[0]
	packDir := filepath.Dir(midxPath)
	if len(args) == 2 {
		packDir = args[1]
	}

	report, err := midx.Verify(midxPath, packDir)
	if err != nil {
		log.WithField("path", midxPath).Errorf("verify: %v", err)
		return 1
	}
	for _, v := range report.Violations {
		fmt.Fprintln(os.Stderr, v.String())
	}
	if !report.OK() {
		fmt.Fprintf(os.Stderr, "%s: %d violation(s) found\n", midxPath, len(report.Violations))
		return 1
	}
	fmt.Println("ok")
	return 0
}
