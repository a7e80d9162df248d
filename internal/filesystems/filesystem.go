package filesystems

import (
	"io/fs"
	"iter"
	"time"
)

// FileSystem abstracts the source tree a build context is read from
type FileSystem interface {
	// ReadFile reads the named file and returns its contents
	ReadFile(name string) ([]byte, error)

	// ReadDir reads the named directory and returns an iterator over directory entries
	ReadDir(name string) iter.Seq2[DirEntry, error]

	// Stat returns file information for the named path
	Stat(name string) (FileInfo, error)

	// Walk walks the file tree rooted at root in lexical order, calling fn for each file or directory
	Walk(root string, fn WalkFunc) error

	Join(elem ...string) string
	Base(path string) string
	Dir(path string) string

	// Rel returns a slash-separated path from basepath to targpath
	Rel(basepath, targpath string) (string, error)
}

// DirEntry provides information about a directory entry
type DirEntry interface {
	Name() string
	IsDir() bool
	Type() fs.FileMode
	Info() (FileInfo, error)
}

// FileInfo provides information about a file
type FileInfo interface {
	Name() string
	Size() int64
	Mode() fs.FileMode
	ModTime() time.Time
	IsDir() bool
	Sys() interface{}
}

// WalkFunc is the type of function called by Walk
type WalkFunc func(path string, info FileInfo, err error) error

// SkipDir is used as a return value from WalkFunc to indicate that
// the directory named in the call is to be skipped
var SkipDir = fs.SkipDir
