package builder

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
	"github.com/railwayapp/stevedore/internal/filesystems"
)

// IgnoreFile is read from the root of the build context
const IgnoreFile = ".dockerignore"

// Ignore holds the compiled .dockerignore patterns of a build context
type Ignore struct {
	Patterns []string
	matcher  *patternmatcher.PatternMatcher
}

// LoadIgnore reads the .dockerignore of contextDir. A missing file excludes nothing.
func LoadIgnore(filesystem filesystems.FileSystem, contextDir string) (*Ignore, error) {
	content, err := filesystem.ReadFile(filesystem.Join(contextDir, IgnoreFile))
	if errors.Is(err, fs.ErrNotExist) {
		return &Ignore{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", IgnoreFile, err)
	}
	return ParseIgnore(content)
}

// ParseIgnore compiles .dockerignore content
func ParseIgnore(content []byte) (*Ignore, error) {
	patterns, err := ignorefile.ReadAll(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", IgnoreFile, err)
	}
	matcher, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern in %s: %w", IgnoreFile, err)
	}
	return &Ignore{Patterns: patterns, matcher: matcher}, nil
}

// Excludes reports whether rel, a slash-separated context path, is left out of the build context
func (i *Ignore) Excludes(rel string) bool {
	if i == nil || i.matcher == nil {
		return false
	}
	// the ignore file and Dockerfile always reach the daemon
	if rel == IgnoreFile {
		return false
	}
	excluded, err := i.matcher.MatchesOrParentMatches(rel)
	return err == nil && excluded
}

// ContextOptions controls how the build context archive is written
type ContextOptions struct {
	Ignore *Ignore
	// Dockerfile replaces any file at DockerfileName in the archive
	Dockerfile     []byte
	DockerfileName string
}

// WriteContext writes contextDir as an uncompressed tar stream in lexical order.
// Only regular files and directories are archived.
func WriteContext(w io.Writer, filesystem filesystems.FileSystem, contextDir string, opts ContextOptions) error {
	tw := tar.NewWriter(w)

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
		if rel != opts.DockerfileName && opts.Ignore.Excludes(rel) {
			if info.IsDir() {
				return filesystems.SkipDir
			}
			return nil
		}
		if opts.Dockerfile != nil && rel == opts.DockerfileName {
			return nil
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "", ""
		if info.IsDir() {
			hdr.Name += "/"
			return tw.WriteHeader(hdr)
		}

		content, err := filesystem.ReadFile(p)
		if err != nil {
			return err
		}
		hdr.Size = int64(len(content))
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err = tw.Write(content)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to archive build context: %w", err)
	}

	if opts.Dockerfile != nil {
		if err := writeDockerfile(tw, opts.DockerfileName, opts.Dockerfile); err != nil {
			return err
		}
	}

	return tw.Close()
}

func writeDockerfile(tw *tar.Writer, name string, content []byte) error {
	if name == "" || path.IsAbs(name) || strings.HasPrefix(path.Clean(name), "..") {
		return fmt.Errorf("Dockerfile name %q must be relative to the build context", name)
	}
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     path.Clean(name),
		Mode:     0644,
		Size:     int64(len(content)),
		Format:   tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}
