package filesystems

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/go-github/v74/github"
	"golang.org/x/oauth2"
)

// maxArchiveSize bounds the zipball held in memory
const maxArchiveSize = 512 << 20

// GitHubRef names a repository snapshot and the subdirectory holding the service
type GitHubRef struct {
	Owner  string
	Repo   string
	Ref    string
	Subdir string
}

// ParseGitHubURL parses github://owner/repo[/tree/ref[/subdir]]
func ParseGitHubURL(u *url.URL) (GitHubRef, error) {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if u.Host == "" || parts[0] == "" {
		return GitHubRef{}, fmt.Errorf("invalid GitHub URL format, expected: github://owner/repo[/tree/ref[/subdir]]")
	}

	ref := GitHubRef{Owner: u.Host, Repo: parts[0]}
	if len(parts) > 1 {
		if parts[1] != "tree" || len(parts) < 3 {
			return GitHubRef{}, fmt.Errorf("invalid GitHub URL format, expected: github://owner/repo[/tree/ref[/subdir]]")
		}
		ref.Ref = parts[2]
		ref.Subdir = strings.Join(parts[3:], "/")
	}
	if err := checkSubdir(ref.Subdir); err != nil {
		return GitHubRef{}, err
	}
	return ref, nil
}

// GitHubFS is a repository snapshot downloaded as a zipball and held in memory
type GitHubFS struct {
	*MemoryFS
	Ref GitHubRef
}

// NewGitHubFS downloads ref. An empty Ref means the default branch; a token
// is needed for private repositories.
func NewGitHubFS(ctx context.Context, ref GitHubRef, token string) (*GitHubFS, error) {
	httpClient := http.DefaultClient
	if token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	client := github.NewClient(httpClient)

	if ref.Ref == "" {
		repo, _, err := client.Repositories.Get(ctx, ref.Owner, ref.Repo)
		if err != nil {
			return nil, fmt.Errorf("failed to look up %s/%s: %w", ref.Owner, ref.Repo, err)
		}
		ref.Ref = repo.GetDefaultBranch()
	}

	link, _, err := client.Repositories.GetArchiveLink(ctx, ref.Owner, ref.Repo, github.Zipball,
		&github.RepositoryContentGetOptions{Ref: ref.Ref}, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to get archive link for %s/%s@%s: %w", ref.Owner, ref.Repo, ref.Ref, err)
	}

	data, err := download(ctx, httpClient, link.String())
	if err != nil {
		// the link may carry a short-lived token, so it is not part of the error
		return nil, fmt.Errorf("failed to download %s/%s@%s: %w", ref.Owner, ref.Repo, ref.Ref, err)
	}

	mfs, err := LoadZip(data, ref.Subdir)
	if err != nil {
		return nil, err
	}
	return &GitHubFS{MemoryFS: mfs, Ref: ref}, nil
}

func download(ctx context.Context, client *http.Client, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxArchiveSize {
		return nil, fmt.Errorf("archive is larger than %d bytes", maxArchiveSize)
	}
	return data, nil
}

// LoadZip reads a GitHub zipball into memory. Entries are stored relative to
// subdir with the archive's top-level "owner-repo-sha/" directory removed.
// Symlinks are skipped; file modes are kept.
func LoadZip(data []byte, subdir string) (*MemoryFS, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	prefix := ""
	if subdir != "" {
		prefix = strings.Trim(subdir, "/") + "/"
	}

	mfs := NewMemoryFS()
	found := subdir == ""
	for _, f := range zr.File {
		_, name, ok := strings.Cut(strings.TrimPrefix(f.Name, "/"), "/")
		if !ok || name == "" {
			continue
		}
		if prefix != "" {
			if name+"/" == prefix {
				found = true
				continue
			}
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			name = strings.TrimPrefix(name, prefix)
			found = true
		}

		clean := path.Clean(strings.TrimSuffix(name, "/"))
		if clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
			return nil, fmt.Errorf("archive entry %q leaves the repository", f.Name)
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			mfs.AddDir(clean)
		case mode&fs.ModeSymlink != 0:
			continue
		default:
			content, err := readZipFile(f)
			if err != nil {
				return nil, err
			}
			mfs.AddFileMode(clean, content, mode.Perm())
		}
	}

	if !found {
		return nil, fmt.Errorf("subdirectory %s not found in archive", subdir)
	}
	return mfs, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
