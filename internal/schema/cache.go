package schema

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/railwayapp/stevedore/internal/filesystems"
)

// ExcludeFunc reports whether a slash-separated context path is left out of the build context
type ExcludeFunc func(rel string) bool

// CacheKeys returns a content-addressed key for every layer of spec.
// A key covers its parent key, the instruction and, for COPY layers reading the
// build context, the digests of the files it reads. Identical inputs up to a
// layer yield identical keys, which is what a build cache hit means.
func CacheKeys(spec ImageSpec, filesystem filesystems.FileSystem, contextDir string, exclude ExcludeFunc) ([]digest.Digest, error) {
	files, err := contextDigests(filesystem, contextDir, exclude)
	if err != nil {
		return nil, err
	}

	keys := make([]digest.Digest, 0, len(spec.Layers))
	var parent digest.Digest
	for i, layer := range spec.Layers {
		digester := digest.Canonical.Digester()
		h := digester.Hash()

		io.WriteString(h, parent.String())
		io.WriteString(h, "\x00"+string(layer.Instruction))
		io.WriteString(h, "\x00"+layer.From)
		io.WriteString(h, "\x00"+strings.Join(layer.Args, "\x00"))

		if layer.Instruction == InstructionCopy && layer.From == "" {
			matched := 0
			for _, src := range layer.Sources() {
				for _, f := range files {
					if matchesSource(src, f.rel) {
						io.WriteString(h, "\x00"+f.rel+"="+f.digest.String())
						matched++
					}
				}
			}
			if matched == 0 {
				return nil, fmt.Errorf("layer %d: COPY %s matches no files in the build context", i, strings.Join(layer.Sources(), " "))
			}
		}

		parent = digester.Digest()
		keys = append(keys, parent)
	}

	return keys, nil
}

type contextFile struct {
	rel    string
	digest digest.Digest
}

func contextDigests(filesystem filesystems.FileSystem, contextDir string, exclude ExcludeFunc) ([]contextFile, error) {
	var files []contextFile
	err := filesystem.Walk(contextDir, func(p string, info filesystems.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filesystem.Rel(contextDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if exclude != nil && exclude(rel) {
			if info.IsDir() {
				return filesystems.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		content, err := filesystem.ReadFile(p)
		if err != nil {
			return err
		}
		files = append(files, contextFile{
			rel:    rel,
			digest: digest.FromString(fmt.Sprintf("%o:", info.Mode().Perm()) + string(content)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to hash build context: %w", err)
	}
	return files, nil
}

func matchesSource(src, rel string) bool {
	src = strings.TrimPrefix(path.Clean("/"+src), "/")
	if src == "" {
		return true
	}
	if rel == src || strings.HasPrefix(rel, src+"/") {
		return true
	}
	ok, _ := path.Match(src, rel)
	return ok
}
