package filesystems

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
)

// GitRef names a repository, an optional ref and an optional subdirectory
// holding the service, like a Docker remote build context.
type GitRef struct {
	URL    string
	Ref    string
	Subdir string
}

// Name is the repository name without a .git suffix
func (r GitRef) Name() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(path.Base(u.Path), ".git")
}

// ParseGitURL parses git://owner/repo, git://github.com/owner/repo and
// git://host/path/repo.git URLs. The fragment is ref[:subdir].
func ParseGitURL(u *url.URL) (GitRef, error) {
	trimmed := strings.Trim(u.Path, "/")
	if u.Host == "" || trimmed == "" {
		return GitRef{}, fmt.Errorf("invalid git URL format, expected: git://owner/repo or git://host/owner/repo")
	}

	var ref GitRef
	if !strings.Contains(u.Host, ".") && !strings.Contains(trimmed, "/") {
		// shorthand for a GitHub repository
		ref.URL = fmt.Sprintf("https://github.com/%s/%s", u.Host, trimmed)
	} else {
		ref.URL = fmt.Sprintf("https://%s/%s", u.Host, trimmed)
	}

	ref.Ref, ref.Subdir, _ = strings.Cut(u.Fragment, ":")
	ref.Subdir = strings.Trim(ref.Subdir, "/")
	if err := checkSubdir(ref.Subdir); err != nil {
		return GitRef{}, err
	}
	return ref, nil
}

func checkSubdir(subdir string) error {
	if subdir == "" {
		return nil
	}
	clean := path.Clean(subdir)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("subdirectory %q leaves the repository", subdir)
	}
	return nil
}

// GitClone is a shallow checkout in a temporary directory
type GitClone struct {
	dir    string
	subdir string
}

// CloneGit checks ref out into a temporary directory with the git binary.
// A ref that is not a branch or tag, such as a commit, needs a full clone.
func CloneGit(ctx context.Context, ref GitRef) (*GitClone, error) {
	dir, err := os.MkdirTemp("", "stevedore-git-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	clone := &GitClone{dir: dir, subdir: ref.Subdir}

	args := []string{"clone", "--depth", "1"}
	if ref.Ref != "" {
		args = append(args, "--branch", ref.Ref)
	}
	if err := git(ctx, "", append(args, ref.URL, dir)...); err != nil {
		if ref.Ref == "" {
			clone.Cleanup()
			return nil, fmt.Errorf("failed to clone repository %s: %w", ref.URL, err)
		}
		if err := git(ctx, "", "clone", ref.URL, dir); err != nil {
			clone.Cleanup()
			return nil, fmt.Errorf("failed to clone repository %s: %w", ref.URL, err)
		}
		if err := git(ctx, dir, "checkout", "--detach", ref.Ref); err != nil {
			clone.Cleanup()
			return nil, fmt.Errorf("failed to check out %s: %w", ref.Ref, err)
		}
	}

	if _, err := os.Stat(clone.Root()); err != nil {
		clone.Cleanup()
		return nil, fmt.Errorf("subdirectory %s: %w", ref.Subdir, err)
	}
	return clone, nil
}

func git(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

// Root is the local path of the service directory
func (c *GitClone) Root() string {
	return filepath.Join(c.dir, filepath.FromSlash(c.subdir))
}

// Cleanup removes the checkout
func (c *GitClone) Cleanup() error {
	return os.RemoveAll(c.dir)
}
