// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cachefs

import (
	"fmt"
	"os"

	"github.com/jacobsa/fuse/fuseops"
)

// fileHandle pairs an open cache file with the number of kernel opens
// currently referring to it.
type fileHandle struct {
	file  *os.File
	count int
}

// handleTable maps inodes to open cache files, coalescing repeated opens of
// the same inode onto one descriptor. Handle IDs handed to the kernel are
// the inode numbers themselves, so the table is keyed by inode.
//
// Not safe for concurrent use; the file system serializes access.
type handleTable struct {
	handles map[fuseops.InodeID]*fileHandle
}

func newHandleTable() *handleTable {
	return &handleTable{handles: make(map[fuseops.InodeID]*fileHandle, 2)}
}

// lookup returns the handle for ino, if any.
func (ht *handleTable) lookup(ino fuseops.InodeID) (*fileHandle, bool) {
	fh, ok := ht.handles[ino]
	return fh, ok
}

// acquire increments the open count of an existing handle for ino, or calls
// open to produce the descriptor and installs it with a count of one.
func (ht *handleTable) acquire(ino fuseops.InodeID, open func() (*os.File, error)) error {
	if fh, ok := ht.handles[ino]; ok {
		fh.count++
		return nil
	}

	f, err := open()
	if err != nil {
		return err
	}

	ht.handles[ino] = &fileHandle{file: f, count: 1}
	return nil
}

// release decrements the open count for ino, closing and discarding the
// descriptor when it reaches zero. Releasing an inode with no handle is an
// error.
//
// The entry is removed eagerly and reinserted only while other opens remain:
// with normally a single file open at a time this keeps the common path to
// one map operation, at the cost of an extra insert when the file is held
// more than once.
func (ht *handleTable) release(ino fuseops.InodeID) error {
	fh, ok := ht.handles[ino]
	if !ok {
		return fmt.Errorf("no open handle for inode %d", ino)
	}
	delete(ht.handles, ino)

	fh.count--
	if fh.count > 0 {
		ht.handles[ino] = fh
		return nil
	}

	fh.file.Close()
	return nil
}

// len returns the number of live handles.
func (ht *handleTable) len() int {
	return len(ht.handles)
}
