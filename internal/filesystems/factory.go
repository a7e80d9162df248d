package filesystems

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Source is an opened source tree. Root is the path within FS the tree starts at.
type Source struct {
	FS   FileSystem
	Root string
	// Name is the repository name for remote sources, empty for local ones
	Name string

	cleanup func() error
}

// Close releases downloaded or cloned copies of a remote source
func (s *Source) Close() error {
	if s.cleanup == nil {
		return nil
	}
	return s.cleanup()
}

// Open resolves a source location.
// Supports:
// - /path/to/local/dir
// - file:///path/to/local/dir
// - github://owner/repo[/tree/ref[/subdir]]
// - git://host/owner/repo[#ref[:subdir]]
func Open(ctx context.Context, uri string) (*Source, error) {
	if !strings.Contains(uri, "://") {
		if _, err := filepath.Abs(uri); err != nil {
			return nil, fmt.Errorf("failed to get absolute path for %s: %w", uri, err)
		}
		return &Source{FS: NewLocalFS(), Root: uri}, nil
	}

	parsedURL, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid URI %s: %w", uri, err)
	}

	switch parsedURL.Scheme {
	case "file":
		return &Source{FS: NewLocalFS(), Root: GetBasePath(uri)}, nil

	case "github":
		ref, err := ParseGitHubURL(parsedURL)
		if err != nil {
			return nil, err
		}
		gfs, err := NewGitHubFS(ctx, ref, os.Getenv("GITHUB_TOKEN"))
		if err != nil {
			return nil, err
		}
		return &Source{FS: gfs, Root: ".", Name: ref.Repo}, nil

	case "git":
		ref, err := ParseGitURL(parsedURL)
		if err != nil {
			return nil, err
		}
		clone, err := CloneGit(ctx, ref)
		if err != nil {
			return nil, err
		}
		return &Source{FS: NewLocalFS(), Root: clone.Root(), Name: ref.Name(), cleanup: clone.Cleanup}, nil

	default:
		return nil, fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}
}

// GetBasePath returns the path within the filesystem that the URI points at
func GetBasePath(uri string) string {
	if !strings.Contains(uri, "://") {
		return uri
	}

	parsedURL, err := url.Parse(uri)
	if err != nil {
		return uri
	}

	if parsedURL.Scheme == "file" {
		return parsedURL.Path
	}
	return uri
}
