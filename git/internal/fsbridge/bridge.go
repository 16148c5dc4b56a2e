// Package fsbridge connects fs.Filesystem values to go-git's billy based storage.
package fsbridge

import (
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/bcit-ltc/forge-pipeline/fs"
	fsb "github.com/bcit-ltc/forge-pipeline/fs/billy"
)

const minCacheSize = 100

// ToBillyFilesystem unwraps the billy filesystem behind fsys.
// Only filesystems created by the fs/billy package are supported.
//
//nolint:ireturn // go-git storage is built on billy.Filesystem
func ToBillyFilesystem(fsys fs.Filesystem) (billy.Filesystem, error) {
	b, ok := fsys.(*fsb.FS)
	if !ok {
		return nil, fmt.Errorf("git storage needs an fs/billy filesystem, got %T", fsys)
	}
	return b.Raw(), nil
}

// NewStorage returns object storage rooted at dotGit with an LRU object cache
// of cacheSize entries. Sizes below the minimum are raised to it.
func NewStorage(dotGit billy.Filesystem, cacheSize int) *filesystem.Storage {
	if cacheSize < minCacheSize {
		cacheSize = minCacheSize
	}
	return filesystem.NewStorage(dotGit, cache.NewObjectLRU(cache.FileSize(cacheSize)))
}
