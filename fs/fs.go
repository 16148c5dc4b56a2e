// Package fs defines the filesystem abstraction shared by the git facade and
// the chart tooling. Implementations live in subpackages (see fs/billy).
package fs

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Filesystem is the read/write filesystem used for repository worktrees and
// chart directories. Paths are slash separated and relative to the
// filesystem root.
type Filesystem interface {
	Create(name string) (File, error)
	Open(name string) (File, error)
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	Stat(name string) (os.FileInfo, error)
	Rename(oldname, newname string) error
	Remove(name string) error
	RemoveAll(name string) error
	ReadDir(name string) ([]os.FileInfo, error)
	MkdirAll(name string, perm os.FileMode) error
	Walk(root string, fn filepath.WalkFunc) error
	TempDir(dir, prefix string) (string, error)
	Exists(name string) (bool, error)
}

// TreeFile is a regular file collected by ReadTree.
type TreeFile struct {
	// Name is the slash separated path relative to the walked root.
	Name string
	Data []byte
}

// ReadTree reads every regular file below root and returns them sorted by name.
// Names are relative to root. Entries whose base name starts with "." are
// skipped when skipHidden is set.
func ReadTree(fsys Filesystem, root string, skipHidden bool) ([]TreeFile, error) {
	var files []TreeFile
	clean := path.Clean(filepath.ToSlash(root))

	err := fsys.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := relative(clean, p)
		if skipHidden && rel != "" && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		data, readErr := fsys.ReadFile(p)
		if readErr != nil {
			return readErr
		}
		files = append(files, TreeFile{Name: rel, Data: data})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func relative(root, p string) string {
	rel := path.Clean(filepath.ToSlash(p))
	switch {
	case rel == root, rel == ".":
		return ""
	case root == ".":
		return rel
	case root == "/":
		return strings.TrimPrefix(rel, "/")
	default:
		return strings.TrimPrefix(rel, root+"/")
	}
}
