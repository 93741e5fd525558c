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
	"bytes"
	"fmt"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
)

// LockedWriter is a scoped acquisition of the index lock: mutate in
// memory while held, then either Commit a new file into place
// atomically or Rollback, releasing the underlying lock either way.
type LockedWriter struct {
	fl       *flock.Flock
	path     string
	released bool
}

// AcquireLock takes an exclusive, process-and-host-wide lock on path's
// index, represented on disk as path+".lock". The caller MUST call
// either Commit or Rollback exactly once to release it.
func AcquireLock(path string) (*LockedWriter, error) {
	fl := flock.New(path + ".lock")
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("sparseindex: lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("sparseindex: lock %s: already locked", path)
	}
	return &LockedWriter{fl: fl, path: path}, nil
}

// Commit atomically replaces the locked file's contents with data, then
// releases the lock.
func (lw *LockedWriter) Commit(data []byte) error {
	if lw.released {
		return fmt.Errorf("sparseindex: commit %s: lock already released", lw.path)
	}
	defer lw.release()
	if err := atomic.WriteFile(lw.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("sparseindex: commit %s: %w", lw.path, err)
	}
	return nil
}

// Rollback releases the lock without writing anything.
func (lw *LockedWriter) Rollback() error {
	if lw.released {
		return nil
	}
	lw.release()
	return nil
}

func (lw *LockedWriter) release() {
	lw.released = true
	lw.fl.Unlock()
}
