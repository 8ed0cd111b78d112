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

// Package fstree owns the inode namespace of a mounted tree: a mapping from
// dense inode numbers to file metadata, built from one breadth-first scan of
// the remote root and immutable afterwards.
package fstree

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/moparisthebest/cache-fs/internal/logger"
)

// RootInode is the inode number of the tree root. The kernel expects the
// root of a fuse mount at inode 1.
const RootInode uint64 = 1

// Extra is the kind-specific payload of a FileInfo: DirExtra for
// directories, SymlinkExtra for symlinks, nil for regular files, which
// carry nothing beyond their Attr. Holding directory state for a symlink or
// vice versa is unrepresentable.
type Extra interface {
	isExtra()
}

// SymlinkExtra carries the link target read at scan time. The bytes are
// stored as-is; interpretation is the reader's problem.
type SymlinkExtra struct {
	Target string
}

// DirExtra carries a directory's children as a name → inode mapping. Names
// are the raw bytes returned by the remote listing and need not be UTF-8.
type DirExtra struct {
	Children map[string]uint64
}

func (SymlinkExtra) isExtra() {}
func (DirExtra) isExtra()     {}

func init() {
	gob.Register(SymlinkExtra{})
	gob.Register(DirExtra{})
}

// FileInfo is the per-inode record. Parent is zero only for the root, whose
// Path is empty; every other Path is relative to the remote root.
type FileInfo struct {
	Parent uint64
	Path   string
	Attr   Attr
	Extra  Extra
}

// Tree maps inode numbers to FileInfo records. It is constructed once, by
// Build or Load, and must not be mutated afterwards; all query methods are
// read-only and safe to call from any number of goroutines.
type Tree struct {
	inodes map[uint64]*FileInfo
}

// Build scans the directory tree rooted at remoteRoot breadth-first and
// assigns inode numbers densely from 1 in listing order. Entries whose
// metadata can't be read, whose type isn't a regular file, directory or
// symlink, or whose symlink target can't be read are skipped without
// consuming an inode number. An unreadable directory listing leaves that
// directory empty. Only an unreadable root is fatal.
func Build(remoteRoot string) (*Tree, error) {
	rootInfo, err := os.Lstat(remoteRoot)
	if err != nil {
		return nil, fmt.Errorf("stat remote root: %w", err)
	}

	attr, err := NewAttr(rootInfo, RootInode)
	if err != nil {
		return nil, fmt.Errorf("remote root attributes: %w", err)
	}

	t := &Tree{inodes: make(map[uint64]*FileInfo)}
	t.inodes[RootInode] = &FileInfo{
		Parent: 0,
		Path:   "",
		Attr:   attr,
		Extra:  DirExtra{Children: make(map[string]uint64)},
	}

	nextIno := RootInode + 1
	frontier := []uint64{RootInode}
	for len(frontier) > 0 {
		var next []uint64
		for _, dir := range frontier {
			t.scanDir(remoteRoot, &nextIno, &next, dir)
		}
		frontier = next
	}

	logger.Debugf("built file tree:\n%s", t.DebugString())
	return t, nil
}

func (t *Tree) scanDir(remoteRoot string, nextIno *uint64, frontier *[]uint64, dirIno uint64) {
	dir := t.inodes[dirIno]
	children := dir.Extra.(DirExtra).Children

	entries, err := os.ReadDir(filepath.Join(remoteRoot, dir.Path))
	if err != nil {
		logger.Debugf("leaving unreadable directory %q empty: %v", dir.Path, err)
		return
	}

	for _, de := range entries {
		info, err := de.Info()
		if err != nil {
			logger.Debugf("skipping %q: %v", de.Name(), err)
			continue
		}

		attr, err := NewAttr(info, *nextIno)
		if err != nil {
			logger.Debugf("skipping %q: unsupported file type %v", de.Name(), info.Mode())
			continue
		}

		relPath := filepath.Join(dir.Path, de.Name())

		var extra Extra
		switch attr.Kind {
		case Directory:
			*frontier = append(*frontier, attr.Ino)
			extra = DirExtra{Children: make(map[string]uint64)}

		case Symlink:
			target, err := os.Readlink(filepath.Join(remoteRoot, relPath))
			if err != nil {
				logger.Debugf("skipping symlink %q: %v", relPath, err)
				continue
			}
			extra = SymlinkExtra{Target: target}
		}

		children[de.Name()] = attr.Ino
		t.inodes[attr.Ino] = &FileInfo{
			Parent: dirIno,
			Path:   relPath,
			Attr:   attr,
			Extra:  extra,
		}
		*nextIno++
	}
}

// Lookup resolves a child name within a directory. It reports false when the
// parent is unknown, isn't a directory, or doesn't contain the name.
func (t *Tree) Lookup(parent uint64, name string) (Attr, bool) {
	_, children, ok := t.Folder(parent)
	if !ok {
		return Attr{}, false
	}

	child, ok := children[name]
	if !ok {
		return Attr{}, false
	}

	fi, ok := t.inodes[child]
	if !ok {
		return Attr{}, false
	}

	return fi.Attr, true
}

// GetAttr returns the attributes of an inode.
func (t *Tree) GetAttr(ino uint64) (Attr, bool) {
	fi, ok := t.inodes[ino]
	if !ok {
		return Attr{}, false
	}
	return fi.Attr, true
}

// Folder returns an inode's record and its children iff it is a directory.
// The returned map is owned by the tree and must not be modified.
func (t *Tree) Folder(ino uint64) (*FileInfo, map[string]uint64, bool) {
	fi, ok := t.inodes[ino]
	if !ok {
		return nil, nil, false
	}

	dir, ok := fi.Extra.(DirExtra)
	if !ok {
		return nil, nil, false
	}

	return fi, dir.Children, true
}

// Symlink returns an inode's record and its target iff it is a symlink.
func (t *Tree) Symlink(ino uint64) (*FileInfo, string, bool) {
	fi, ok := t.inodes[ino]
	if !ok {
		return nil, "", false
	}

	link, ok := fi.Extra.(SymlinkExtra)
	if !ok {
		return nil, "", false
	}

	return fi, link.Target, true
}

// File returns an inode's record regardless of kind.
func (t *Tree) File(ino uint64) (*FileInfo, bool) {
	fi, ok := t.inodes[ino]
	return fi, ok
}

// Len returns the number of inodes in the tree.
func (t *Tree) Len() int {
	return len(t.inodes)
}

// DebugString renders the tree in inode order, one line per inode.
func (t *Tree) DebugString() string {
	inos := make([]uint64, 0, len(t.inodes))
	for ino := range t.inodes {
		inos = append(inos, ino)
	}
	sort.Slice(inos, func(i, j int) bool { return inos[i] < inos[j] })

	var b strings.Builder
	for _, ino := range inos {
		fi := t.inodes[ino]
		fmt.Fprintf(&b, "-- %d: [parent: %d, %v, %q]\n", ino, fi.Parent, fi.Attr.Kind, fi.Path)
		switch extra := fi.Extra.(type) {
		case DirExtra:
			fmt.Fprintf(&b, "---- children: %v\n", extra.Children)
		case SymlinkExtra:
			fmt.Fprintf(&b, "---- link to: %q\n", extra.Target)
		}
	}
	return b.String()
}
