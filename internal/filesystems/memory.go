package filesystems

import (
	"fmt"
	"io/fs"
	"iter"
	"path"
	"sort"
	"strings"
	"time"
)

// MemoryFS is an in-memory source tree, used for fixtures
type MemoryFS struct {
	files map[string]memoryFile
	dirs  map[string]bool
}

type memoryFile struct {
	content []byte
	mode    fs.FileMode
}

// epoch keeps memory file metadata stable so tar headers and digests are reproducible
var epoch = time.Unix(0, 0).UTC()

func NewMemoryFS() *MemoryFS {
	return &MemoryFS{
		files: make(map[string]memoryFile),
		dirs:  make(map[string]bool),
	}
}

// AddFile adds a regular file with mode 0644, creating parent directories
func (mfs *MemoryFS) AddFile(name string, content []byte) {
	mfs.AddFileMode(name, content, 0644)
}

// AddFileMode adds a regular file with the given permission bits
func (mfs *MemoryFS) AddFileMode(name string, content []byte, mode fs.FileMode) {
	clean := path.Clean(name)
	mfs.files[clean] = memoryFile{content: content, mode: mode.Perm()}
	mfs.addParents(clean)
}

// AddDir adds an empty directory
func (mfs *MemoryFS) AddDir(name string) {
	clean := path.Clean(name)
	mfs.dirs[clean] = true
	mfs.addParents(clean)
}

func (mfs *MemoryFS) addParents(name string) {
	for dir := path.Dir(name); dir != "." && dir != "/"; dir = path.Dir(dir) {
		mfs.dirs[dir] = true
	}
}

func (mfs *MemoryFS) ReadFile(name string) ([]byte, error) {
	file, ok := mfs.files[path.Clean(name)]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", name, fs.ErrNotExist)
	}
	return file.content, nil
}

func (mfs *MemoryFS) isDir(name string) bool {
	return name == "." || mfs.dirs[name]
}

func (mfs *MemoryFS) Stat(name string) (FileInfo, error) {
	clean := path.Clean(name)
	if mfs.isDir(clean) {
		return &memoryFileInfo{name: path.Base(clean), mode: fs.ModeDir | 0755, isDir: true}, nil
	}
	if file, ok := mfs.files[clean]; ok {
		return &memoryFileInfo{name: path.Base(clean), size: int64(len(file.content)), mode: file.mode}, nil
	}
	return nil, fmt.Errorf("stat %s: %w", name, fs.ErrNotExist)
}

// children returns the sorted names of the direct children of dir
func (mfs *MemoryFS) children(dir string) []string {
	prefix := ""
	if dir != "." {
		prefix = dir + "/"
	}

	seen := make(map[string]bool)
	collect := func(p string) {
		if !strings.HasPrefix(p, prefix) {
			return
		}
		rest := strings.TrimPrefix(p, prefix)
		if rest == "" {
			return
		}
		seen[strings.SplitN(rest, "/", 2)[0]] = true
	}
	for p := range mfs.files {
		collect(p)
	}
	for p := range mfs.dirs {
		collect(p)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (mfs *MemoryFS) ReadDir(name string) iter.Seq2[DirEntry, error] {
	return func(yield func(DirEntry, error) bool) {
		clean := path.Clean(name)
		if !mfs.isDir(clean) {
			yield(nil, fmt.Errorf("open %s: %w", name, fs.ErrNotExist))
			return
		}

		for _, child := range mfs.children(clean) {
			full := child
			if clean != "." {
				full = path.Join(clean, child)
			}
			if !yield(&memoryDirEntry{mfs: mfs, name: child, fullPath: full}, nil) {
				return
			}
		}
	}
}

func (mfs *MemoryFS) Walk(root string, fn WalkFunc) error {
	var walk func(string) error
	walk = func(p string) error {
		info, err := mfs.Stat(p)
		if err != nil {
			return fn(p, nil, err)
		}
		if err := fn(p, info, nil); err != nil {
			if err == SkipDir && info.IsDir() {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			return nil
		}
		for _, child := range mfs.children(p) {
			next := child
			if p != "." {
				next = path.Join(p, child)
			}
			if err := walk(next); err != nil {
				return err
			}
		}
		return nil
	}

	return walk(path.Clean(root))
}

func (mfs *MemoryFS) Join(elem ...string) string {
	return path.Join(elem...)
}

func (mfs *MemoryFS) Base(p string) string {
	return path.Base(p)
}

func (mfs *MemoryFS) Dir(p string) string {
	return path.Dir(p)
}

func (mfs *MemoryFS) Rel(basepath, targpath string) (string, error) {
	base := path.Clean(basepath)
	target := path.Clean(targpath)

	switch {
	case base == target:
		return ".", nil
	case base == ".":
		return target, nil
	case strings.HasPrefix(target, base+"/"):
		return strings.TrimPrefix(target, base+"/"), nil
	}
	return "", fmt.Errorf("%s is not under %s", targpath, basepath)
}

type memoryDirEntry struct {
	mfs      *MemoryFS
	name     string
	fullPath string
}

func (e *memoryDirEntry) Name() string {
	return e.name
}

func (e *memoryDirEntry) IsDir() bool {
	return e.mfs.isDir(e.fullPath)
}

func (e *memoryDirEntry) Type() fs.FileMode {
	if e.IsDir() {
		return fs.ModeDir
	}
	return 0
}

func (e *memoryDirEntry) Info() (FileInfo, error) {
	return e.mfs.Stat(e.fullPath)
}

type memoryFileInfo struct {
	name  string
	size  int64
	mode  fs.FileMode
	isDir bool
}

func (fi *memoryFileInfo) Name() string       { return fi.name }
func (fi *memoryFileInfo) Size() int64        { return fi.size }
func (fi *memoryFileInfo) Mode() fs.FileMode  { return fi.mode }
func (fi *memoryFileInfo) ModTime() time.Time { return epoch }
func (fi *memoryFileInfo) IsDir() bool        { return fi.isDir }
func (fi *memoryFileInfo) Sys() interface{}   { return nil }
