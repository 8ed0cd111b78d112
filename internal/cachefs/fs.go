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

// Package cachefs implements the read-only fuse file system. Metadata is
// answered from an immutable fstree.Tree; file content is served from an
// on-disk cache that is populated lazily, one atomic copy-then-rename per
// file, on first open.
package cachefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
	"github.com/moparisthebest/cache-fs/internal/fstree"
	"github.com/moparisthebest/cache-fs/internal/logger"
)

// ttl is how long the kernel may cache entry and attribute replies. The
// tree never changes for the lifetime of the mount, so this is purely a
// bound on kernel memory, not a consistency knob.
const ttl = 120 * time.Second

type ServerConfig struct {
	// The directory being mirrored.
	RemoteDir string

	// The cache directory. File content is cached under CacheDir/root at
	// the same relative paths as the remote; CacheDir/tmp.file is the
	// scratch slot for in-flight copies.
	CacheDir string

	// The inode namespace, from fstree.LoadOrBuild.
	Tree *fstree.Tree

	// A clock used for entry and attribute expiration times.
	Clock timeutil.Clock
}

// NewServer creates a fuse server serving the supplied tree.
func NewServer(cfg *ServerConfig) (fuse.Server, error) {
	if cfg.Tree == nil {
		return nil, errors.New("a file tree is required")
	}

	return fuseutil.NewFileSystemServer(newCacheFS(cfg)), nil
}

func newCacheFS(cfg *ServerConfig) *cacheFS {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock()
	}

	fs := &cacheFS{
		remoteDir: cfg.RemoteDir,
		cacheRoot: filepath.Join(cfg.CacheDir, "root"),
		tmpFile:   filepath.Join(cfg.CacheDir, "tmp.file"),
		tree:      cfg.Tree,
		clock:     clock,
		handles:   newHandleTable(),
	}
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)

	return fs
}

////////////////////////////////////////////////////////////////////////
// cacheFS type
////////////////////////////////////////////////////////////////////////

type cacheFS struct {
	fuseutil.NotImplementedFileSystem

	/////////////////////////
	// Constant data
	/////////////////////////

	remoteDir string
	cacheRoot string
	tmpFile   string

	// Immutable after construction, so read without locks.
	tree *fstree.Tree

	clock timeutil.Clock

	/////////////////////////
	// Mutable state
	/////////////////////////

	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	handles *handleTable
}

func (fs *cacheFS) checkInvariants() {
	for ino, fh := range fs.handles.handles {
		if fh.count < 1 {
			panic(fmt.Sprintf("non-positive open count %d for inode %d", fh.count, ino))
		}
		if fh.file == nil {
			panic("nil cache descriptor in handle table")
		}
	}
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// errno maps an I/O error to the errno reported over the transport.
// Anything that isn't a permission or existence problem is logged and
// flattened to EIO.
func errno(err error) error {
	switch {
	case os.IsPermission(err):
		return syscall.EPERM
	case os.IsNotExist(err):
		return fuse.ENOENT
	default:
		logger.Errorf("%v", err)
		return fuse.EIO
	}
}

func fuseAttributes(a fstree.Attr) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:   a.Size,
		Nlink:  a.Nlink,
		Mode:   a.FileMode(),
		Atime:  a.Atime,
		Mtime:  a.Mtime,
		Ctime:  a.Ctime,
		Crtime: a.Crtime,
		Uid:    a.Uid,
		Gid:    a.Gid,
	}
}

func direntType(k fstree.Kind) fuseutil.DirentType {
	switch k {
	case fstree.Directory:
		return fuseutil.DT_Directory
	case fstree.Symlink:
		return fuseutil.DT_Link
	case fstree.RegularFile:
		return fuseutil.DT_File
	default:
		return fuseutil.DT_Unknown
	}
}

// populate materializes the remote file at the given relative path into the
// cache by copying into the shared temp slot and renaming into place. The
// rename is the atomicity point: a concurrent or later open sees either no
// cache entry or the complete file, never a partial copy.
func (fs *cacheFS) populate(relPath string) error {
	cachePath := filepath.Join(fs.cacheRoot, relPath)

	parent := filepath.Dir(cachePath)
	if err := os.MkdirAll(parent, 0755); err != nil {
		logger.Errorf("cannot create cache dir %q to copy into: %v", parent, err)
		return fuse.EIO
	}

	remotePath := filepath.Join(fs.remoteDir, relPath)
	logger.Debugf("copying from %q to %q", remotePath, fs.tmpFile)
	if err := copyFile(fs.tmpFile, remotePath); err != nil {
		logger.Errorf("failed to copy from %q to %q: %v", remotePath, fs.tmpFile, err)
		return fuse.EIO
	}

	logger.Debugf("moving from %q to %q", fs.tmpFile, cachePath)
	if err := os.Rename(fs.tmpFile, cachePath); err != nil {
		logger.Errorf("failed to move from %q to %q: %v", fs.tmpFile, cachePath, err)
		// Clear the temp slot for the next attempt; nothing more can be done.
		os.Remove(fs.tmpFile)
		return fuse.EIO
	}

	return nil
}

func copyFile(dst, src string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}

// openCacheFile returns a read-only descriptor for the cache copy of the
// given inode, populating the cache first if needed.
func (fs *cacheFS) openCacheFile(ino fuseops.InodeID) (*os.File, error) {
	fi, ok := fs.tree.File(uint64(ino))
	if !ok {
		return nil, fuse.ENOENT
	}

	cachePath := filepath.Join(fs.cacheRoot, fi.Path)
	if _, err := os.Lstat(cachePath); err != nil {
		if err := fs.populate(fi.Path); err != nil {
			return nil, err
		}
	}

	f, err := os.OpenFile(cachePath, os.O_RDONLY, 0)
	if err != nil {
		return nil, errno(err)
	}

	return f, nil
}

////////////////////////////////////////////////////////////////////////
// FileSystem methods
////////////////////////////////////////////////////////////////////////

func (fs *cacheFS) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	return nil
}

func (fs *cacheFS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	logger.Debugf("lookup: parent: %d, name: %q", op.Parent, op.Name)

	attr, ok := fs.tree.Lookup(uint64(op.Parent), op.Name)
	if !ok {
		return fuse.ENOENT
	}

	expiration := fs.clock.Now().Add(ttl)
	op.Entry = fuseops.ChildInodeEntry{
		Child:                fuseops.InodeID(attr.Ino),
		Generation:           1,
		Attributes:           fuseAttributes(attr),
		AttributesExpiration: expiration,
		EntryExpiration:      expiration,
	}

	return nil
}

func (fs *cacheFS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	logger.Debugf("getattr: ino: %d", op.Inode)

	attr, ok := fs.tree.GetAttr(uint64(op.Inode))
	if !ok {
		return fuse.ENOENT
	}

	op.Attributes = fuseAttributes(attr)
	op.AttributesExpiration = fs.clock.Now().Add(ttl)

	return nil
}

func (fs *cacheFS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	logger.Debugf("opendir: ino: %d", op.Inode)

	if _, ok := fs.tree.GetAttr(uint64(op.Inode)); !ok {
		return fuse.ENOENT
	}

	// No per-handle state; the inode doubles as the handle.
	op.Handle = fuseops.HandleID(op.Inode)

	return nil
}

func (fs *cacheFS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	logger.Debugf("readdir: ino: %d, fh: %d, offset: %d", op.Inode, op.Handle, op.Offset)

	dir, children, ok := fs.tree.Folder(uint64(op.Inode))
	if !ok {
		return fuse.EIO
	}

	if op.Offset == 0 {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseutil.Dirent{
			Offset: 1,
			Inode:  fuseops.InodeID(dir.Attr.Ino),
			Name:   ".",
			Type:   fuseutil.DT_Directory,
		})
		if n == 0 {
			return nil
		}
		op.BytesRead += n
	}

	if op.Offset <= 1 {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseutil.Dirent{
			Offset: 2,
			Inode:  fuseops.InodeID(dir.Parent),
			Name:   "..",
			Type:   fuseutil.DT_Directory,
		})
		if n == 0 {
			return nil
		}
		op.BytesRead += n
	}

	// Children are emitted in sorted name order so that a paged listing
	// resumes at a stable position; the i-th child's dirent carries the
	// offset of the entry after it.
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)

	start := 0
	if op.Offset > 1 {
		start = int(op.Offset) - 2
	}

	for i := start; i < len(names); i++ {
		childIno := children[names[i]]
		child, ok := fs.tree.File(childIno)
		if !ok {
			logger.Errorf("directory %d names missing child inode %d", op.Inode, childIno)
			return fuse.EIO
		}

		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 3),
			Inode:  fuseops.InodeID(childIno),
			Name:   names[i],
			Type:   direntType(child.Attr.Kind),
		})
		if n == 0 {
			break
		}
		op.BytesRead += n
	}

	return nil
}

func (fs *cacheFS) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	logger.Debugf("releasedir: fh: %d", op.Handle)

	if _, ok := fs.tree.File(uint64(op.Handle)); !ok {
		return fuse.EIO
	}

	return nil
}

func (fs *cacheFS) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	logger.Debugf("readlink: ino: %d", op.Inode)

	_, target, ok := fs.tree.Symlink(uint64(op.Inode))
	if !ok {
		return fuse.ENOENT
	}

	op.Target = target

	return nil
}

func (fs *cacheFS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	logger.Debugf("open: ino: %d, flags: %v", op.Inode, op.OpenFlags)

	// Only plain access modes are meaningful here. Write-adjacent modes are
	// let through: the cache file is opened read-only regardless, and any
	// actual write fails at the unimplemented write op.
	switch uint32(op.OpenFlags) & syscall.O_ACCMODE {
	case syscall.O_RDONLY, syscall.O_WRONLY, syscall.O_RDWR:
	default:
		return fuse.EINVAL
	}

	if uint32(op.OpenFlags)&(syscall.O_EXCL|syscall.O_CREAT|syscall.O_APPEND|syscall.O_TRUNC) != 0 {
		logger.Errorf("open: rejecting flags %v for inode %d", op.OpenFlags, op.Inode)
		return fuse.EIO
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	err := fs.handles.acquire(op.Inode, func() (*os.File, error) {
		return fs.openCacheFile(op.Inode)
	})
	if err != nil {
		return err
	}

	op.Handle = fuseops.HandleID(op.Inode)

	return nil
}

func (fs *cacheFS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	logger.Debugf("read: ino: %d, fh: %d, offset: %d, size: %d", op.Inode, op.Handle, op.Offset, len(op.Dst))

	if len(op.Dst) == 0 {
		return nil
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	fh, ok := fs.handles.lookup(fuseops.InodeID(op.Handle))
	if !ok {
		return fuse.EIO
	}

	// ReadAt fills the whole buffer unless it hits the end of the file, so a
	// short read means EOF.
	n, err := fh.file.ReadAt(op.Dst, op.Offset)
	op.BytesRead = n
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return errno(err)
	}

	return nil
}

func (fs *cacheFS) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	logger.Debugf("release: fh: %d", op.Handle)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.handles.release(fuseops.InodeID(op.Handle)); err != nil {
		return fuse.EIO
	}

	return nil
}

func (fs *cacheFS) Destroy() {
}
