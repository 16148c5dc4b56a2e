// Package billy adapts go-billy filesystems to the fs.Filesystem interface.
// In-memory filesystems back per-run chart repository clones; OS filesystems
// back the CI checkout.
package billy

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	parentfs "github.com/bcit-ltc/forge-pipeline/fs"
)

// FS implements fs.Filesystem on top of a billy.Filesystem. Errors wrap the
// billy cause, so errors.Is(err, os.ErrNotExist) holds for missing paths.
type FS struct {
	fs billy.Filesystem
}

var _ parentfs.Filesystem = (*FS)(nil)

// NewFS wraps fsys.
func NewFS(fsys billy.Filesystem) *FS {
	return &FS{fs: fsys}
}

// NewInMemoryFS returns an empty in-memory filesystem.
func NewInMemoryFS() *FS {
	return &FS{fs: memfs.New()}
}

// NewOSFS returns a filesystem rooted at path on the local disk.
func NewOSFS(path string) *FS {
	return &FS{fs: osfs.New(path)}
}

func pathError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("billy: %s %q: %w", op, name, err)
}

func (b *FS) file(op, name string, f billy.File, err error) (parentfs.File, error) {
	if err != nil {
		return nil, pathError(op, name, err)
	}
	return &File{file: f, fs: b}, nil
}

//nolint:ireturn // fs.Filesystem returns the File interface.
func (b *FS) Create(name string) (parentfs.File, error) {
	f, err := b.fs.Create(name)
	return b.file("create", name, f, err)
}

//nolint:ireturn // fs.Filesystem returns the File interface.
func (b *FS) Open(name string) (parentfs.File, error) {
	f, err := b.fs.Open(name)
	return b.file("open", name, f, err)
}

//nolint:ireturn // fs.Filesystem returns the File interface.
func (b *FS) OpenFile(name string, flag int, perm os.FileMode) (parentfs.File, error) {
	f, err := b.fs.OpenFile(name, flag, perm)
	return b.file("open", name, f, err)
}

// Exists reports whether name exists. Only errors other than "not exist"
// are returned.
func (b *FS) Exists(name string) (bool, error) {
	_, err := b.fs.Stat(name)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	}
	return false, pathError("stat", name, err)
}

func (b *FS) Stat(name string) (os.FileInfo, error) {
	info, err := b.fs.Stat(name)
	return info, pathError("stat", name, err)
}

func (b *FS) ReadDir(name string) ([]os.FileInfo, error) {
	list, err := b.fs.ReadDir(name)
	return list, pathError("read dir", name, err)
}

func (b *FS) ReadFile(name string) ([]byte, error) {
	data, err := util.ReadFile(b.fs, name)
	return data, pathError("read", name, err)
}

func (b *FS) WriteFile(name string, data []byte, perm os.FileMode) error {
	return pathError("write", name, util.WriteFile(b.fs, name, data, perm))
}

func (b *FS) MkdirAll(name string, perm os.FileMode) error {
	return pathError("mkdir", name, b.fs.MkdirAll(name, perm))
}

func (b *FS) Remove(name string) error {
	return pathError("remove", name, b.fs.Remove(name))
}

func (b *FS) RemoveAll(name string) error {
	return pathError("remove all", name, util.RemoveAll(b.fs, name))
}

func (b *FS) Rename(oldname, newname string) error {
	return pathError("rename to "+newname, oldname, b.fs.Rename(oldname, newname))
}

func (b *FS) TempDir(dir, prefix string) (string, error) {
	name, err := util.TempDir(b.fs, dir, prefix)
	return name, pathError("temp dir "+prefix, dir, err)
}

func (b *FS) Walk(root string, fn filepath.WalkFunc) error {
	return pathError("walk", root, util.Walk(b.fs, root, fn))
}

// Sub returns a filesystem rooted at dir.
func (b *FS) Sub(dir string) (*FS, error) {
	sub, err := b.fs.Chroot(dir)
	if err != nil {
		return nil, pathError("chroot", dir, err)
	}
	return &FS{fs: sub}, nil
}

// Raw returns the wrapped billy filesystem for go-git.
//
//nolint:ireturn // exposes the adapter target.
func (b *FS) Raw() billy.Filesystem {
	return b.fs
}
