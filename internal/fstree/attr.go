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
	"os"
	"syscall"
	"time"
)

// Kind is the type of an inode as tracked by the tree. Only RegularFile,
// Directory and Symlink are ever produced by the scanner; the remaining
// values exist so that Kind covers the full set of POSIX file types.
type Kind uint8

const (
	NamedPipe Kind = iota
	CharDevice
	BlockDevice
	Directory
	RegularFile
	Symlink
	Socket
)

func (k Kind) String() string {
	switch k {
	case NamedPipe:
		return "NamedPipe"
	case CharDevice:
		return "CharDevice"
	case BlockDevice:
		return "BlockDevice"
	case Directory:
		return "Directory"
	case RegularFile:
		return "RegularFile"
	case Symlink:
		return "Symlink"
	case Socket:
		return "Socket"
	default:
		return "Unknown"
	}
}

// Attr is the full set of attributes served for one inode. It is captured
// once at scan time and round-trips through the snapshot unchanged.
type Attr struct {
	Ino     uint64
	Size    uint64
	Blocks  uint64
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
	Crtime  time.Time
	Kind    Kind
	Perm    uint16
	Nlink   uint32
	Uid     uint32
	Gid     uint32
	Rdev    uint32
	Flags   uint32
	Blksize uint32
}

var unixEpoch = time.Unix(0, 0)

// kindFromMode classifies a file mode, testing symlink-ness first so that
// links to directories don't register as directories. Types the scanner
// doesn't support are reported as non-existent, which callers treat as a
// signal to skip the entry.
func kindFromMode(m os.FileMode) (Kind, error) {
	switch {
	case m&os.ModeSymlink != 0:
		return Symlink, nil
	case m.IsDir():
		return Directory, nil
	case m.IsRegular():
		return RegularFile, nil
	default:
		return 0, syscall.ENOENT
	}
}

// NewAttr converts the lstat result for one entry into an Attr carrying the
// supplied inode number. The raw st_mode is kept in Perm, truncated to its
// low 16 bits; crtime is the epoch since Linux does not report birth times
// through stat.
func NewAttr(fi os.FileInfo, ino uint64) (Attr, error) {
	kind, err := kindFromMode(fi.Mode())
	if err != nil {
		return Attr{}, err
	}

	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return Attr{}, syscall.ENOENT
	}

	return Attr{
		Ino:     ino,
		Size:    uint64(st.Size),
		Blocks:  uint64(st.Blocks),
		Atime:   time.Unix(st.Atim.Sec, st.Atim.Nsec),
		Mtime:   fi.ModTime(),
		Ctime:   time.Unix(st.Ctim.Sec, 0),
		Crtime:  unixEpoch,
		Kind:    kind,
		Perm:    uint16(st.Mode),
		Nlink:   uint32(st.Nlink),
		Uid:     st.Uid,
		Gid:     st.Gid,
		Rdev:    uint32(st.Rdev),
		Flags:   0,
		Blksize: uint32(st.Blksize),
	}, nil
}

// FileMode rebuilds an os.FileMode from the recorded kind and permission
// bits, for handing back to the fuse layer.
func (a *Attr) FileMode() os.FileMode {
	m := os.FileMode(a.Perm) & os.ModePerm
	if a.Perm&syscall.S_ISUID != 0 {
		m |= os.ModeSetuid
	}
	if a.Perm&syscall.S_ISGID != 0 {
		m |= os.ModeSetgid
	}
	if a.Perm&syscall.S_ISVTX != 0 {
		m |= os.ModeSticky
	}

	switch a.Kind {
	case Directory:
		m |= os.ModeDir
	case Symlink:
		m |= os.ModeSymlink
	case NamedPipe:
		m |= os.ModeNamedPipe
	case CharDevice:
		m |= os.ModeDevice | os.ModeCharDevice
	case BlockDevice:
		m |= os.ModeDevice
	case Socket:
		m |= os.ModeSocket
	}

	return m
}
