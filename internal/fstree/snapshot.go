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

package fstree

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/moparisthebest/cache-fs/internal/logger"
)

// SnapshotName is the file under the cache dir holding the serialized tree.
const SnapshotName = "cache-fs.tree.zst"

// snapshotCompressionLevel matches zstd's notion of level 9.
var snapshotCompressionLevel = zstd.EncoderLevelFromZstd(9)

// LoadOrBuild returns the tree persisted under cacheDir if one can be read,
// and otherwise scans remoteRoot and saves the result. Load failures of any
// kind (missing file, truncation, corruption) are logged and fall through to
// a fresh build; a failure to scan or to save the fresh snapshot is fatal.
func LoadOrBuild(remoteRoot, cacheDir string) (*Tree, error) {
	path := filepath.Join(cacheDir, SnapshotName)

	t, err := Load(path)
	if err == nil {
		return t, nil
	}
	logger.Warnf("error loading %q: %v", path, err)

	t, err = Build(remoteRoot)
	if err != nil {
		return nil, err
	}

	if err := t.Save(path); err != nil {
		return nil, err
	}

	return t, nil
}

// Load reads a snapshot written by Save.
func Load(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer zr.Close()

	var inodes map[uint64]*FileInfo
	if err := gob.NewDecoder(zr).Decode(&inodes); err != nil {
		return nil, fmt.Errorf("decoding tree snapshot: %w", err)
	}

	return &Tree{inodes: inodes}, nil
}

// Save writes the tree to path as a zstd-compressed gob stream.
func (t *Tree) Save(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(snapshotCompressionLevel))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}

	if err := gob.NewEncoder(zw).Encode(t.inodes); err != nil {
		zw.Close()
		return fmt.Errorf("encoding tree snapshot: %w", err)
	}

	return zw.Close()
}
