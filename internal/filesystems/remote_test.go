package filesystems

import (
	"archive/zip"
	"bytes"
	"context"
	"io/fs"
	"net/url"
	"testing"
)

func TestParseGitHubURL(t *testing.T) {
	tests := []struct {
		uri     string
		want    GitHubRef
		wantErr bool
	}{
		{"github://railwayapp/stevedore", GitHubRef{Owner: "railwayapp", Repo: "stevedore"}, false},
		{"github://railwayapp/stevedore/tree/v1.2.0", GitHubRef{Owner: "railwayapp", Repo: "stevedore", Ref: "v1.2.0"}, false},
		{"github://acme/monorepo/tree/main/services/api", GitHubRef{Owner: "acme", Repo: "monorepo", Ref: "main", Subdir: "services/api"}, false},
		{"github://acme", GitHubRef{}, true},
		{"github://acme/repo/blob/main", GitHubRef{}, true},
		{"github://acme/repo/tree/main/../../etc", GitHubRef{}, true},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.uri)
		if err != nil {
			t.Fatalf("bad test URI %q: %v", tt.uri, err)
		}
		got, err := ParseGitHubURL(u)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseGitHubURL(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseGitHubURL(%q) = %+v, want %+v", tt.uri, got, tt.want)
		}
	}
}

func TestParseGitURL(t *testing.T) {
	tests := []struct {
		uri      string
		want     GitRef
		wantName string
	}{
		{"git://railwayapp/stevedore", GitRef{URL: "https://github.com/railwayapp/stevedore"}, "stevedore"},
		{"git://github.com/railwayapp/stevedore#v1", GitRef{URL: "https://github.com/railwayapp/stevedore", Ref: "v1"}, "stevedore"},
		{"git://gitlab.com/acme/api.git#main:cmd/server", GitRef{URL: "https://gitlab.com/acme/api.git", Ref: "main", Subdir: "cmd/server"}, "api"},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.uri)
		if err != nil {
			t.Fatalf("bad test URI %q: %v", tt.uri, err)
		}
		got, err := ParseGitURL(u)
		if err != nil {
			t.Errorf("ParseGitURL(%q) unexpected error: %v", tt.uri, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseGitURL(%q) = %+v, want %+v", tt.uri, got, tt.want)
		}
		if got.Name() != tt.wantName {
			t.Errorf("Name() = %q, want %q", got.Name(), tt.wantName)
		}
	}

	u, _ := url.Parse("git://github.com/acme/api#main:../outside")
	if _, err := ParseGitURL(u); err == nil {
		t.Error("expected an error for a subdirectory outside the repository")
	}
}

func zipball(t *testing.T, entries map[string]fs.FileMode) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, mode := range entries {
		header := &zip.FileHeader{Name: name, Method: zip.Deflate}
		header.SetMode(mode)
		w, err := zw.CreateHeader(header)
		if err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}
		if !mode.IsDir() {
			w.Write([]byte("content of " + name))
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close archive: %v", err)
	}
	return buf.Bytes()
}

func TestLoadZip(t *testing.T) {
	data := zipball(t, map[string]fs.FileMode{
		"acme-api-1a2b3c/":                     fs.ModeDir | 0755,
		"acme-api-1a2b3c/requirements.txt":     0644,
		"acme-api-1a2b3c/bin/start.sh":         0755,
		"acme-api-1a2b3c/link":                 fs.ModeSymlink | 0777,
		"acme-api-1a2b3c/services/web/main.py": 0644,
	})

	mfs, err := LoadZip(data, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := mfs.ReadFile("requirements.txt")
	if err != nil || string(content) != "content of acme-api-1a2b3c/requirements.txt" {
		t.Errorf("unexpected requirements.txt: %q, %v", content, err)
	}
	info, err := mfs.Stat("bin/start.sh")
	if err != nil || info.Mode().Perm() != 0755 {
		t.Errorf("expected executable start.sh, got %v, %v", info, err)
	}
	if _, err := mfs.Stat("link"); err == nil {
		t.Error("expected symlinks to be skipped")
	}

	sub, err := LoadZip(data, "services/web")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := sub.ReadFile("main.py"); err != nil {
		t.Errorf("expected main.py at the subdirectory root: %v", err)
	}
	if _, err := sub.ReadFile("requirements.txt"); err == nil {
		t.Error("expected files outside the subdirectory to be left out")
	}

	if _, err := LoadZip(data, "services/missing"); err == nil {
		t.Error("expected an error for a missing subdirectory")
	}
}

func TestOpen_Local(t *testing.T) {
	dir := t.TempDir()

	src, err := Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()
	if src.Root != dir || src.Name != "" {
		t.Errorf("unexpected source %+v", src)
	}
	if _, ok := src.FS.(*LocalFS); !ok {
		t.Errorf("expected LocalFS, got %T", src.FS)
	}

	src, err = Open(context.Background(), "file://"+dir)
	if err != nil || src.Root != dir {
		t.Errorf("unexpected file:// source %+v, %v", src, err)
	}

	if _, err := Open(context.Background(), "s3://bucket/key"); err == nil {
		t.Error("expected an error for an unsupported scheme")
	}
}
