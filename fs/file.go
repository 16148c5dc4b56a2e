package fs

import (
	"io"
	"io/fs"
)

// File is an open file of a Filesystem. go-git reads pack files through
// ReadAt and Seek, so both are required.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.Seeker
	Name() string
	Stat() (fs.FileInfo, error)
}
