package filesystems

import (
	"errors"
	"io/fs"
	"reflect"
	"testing"
)

func TestMemoryFS_AddFile(t *testing.T) {
	mfs := NewMemoryFS()
	mfs.AddFile("requirements.txt", []byte("fastapi==0.115.0\n"))

	result, err := mfs.ReadFile("requirements.txt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(result) != "fastapi==0.115.0\n" {
		t.Fatalf("unexpected content %q", string(result))
	}
}

func TestMemoryFS_ReadFile_NotFound(t *testing.T) {
	mfs := NewMemoryFS()

	_, err := mfs.ReadFile("nonexistent.txt")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestMemoryFS_ReadDir_Sorted(t *testing.T) {
	mfs := NewMemoryFS()
	mfs.AddFile("src/main.py", []byte(""))
	mfs.AddFile("requirements.txt", []byte(""))
	mfs.AddDir("empty")
	mfs.AddFile("Procfile", []byte(""))

	var entries []string
	for entry, err := range mfs.ReadDir(".") {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		entries = append(entries, entry.Name())
	}

	expected := []string{"Procfile", "empty", "requirements.txt", "src"}
	if !reflect.DeepEqual(entries, expected) {
		t.Errorf("expected %v, got %v", expected, entries)
	}
}

func TestMemoryFS_ReadDir_Missing(t *testing.T) {
	mfs := NewMemoryFS()

	for _, err := range mfs.ReadDir("missing") {
		if !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("expected fs.ErrNotExist, got %v", err)
		}
		return
	}
	t.Fatal("expected an error entry")
}

func TestMemoryFS_Walk(t *testing.T) {
	mfs := NewMemoryFS()
	mfs.AddFile("file1.txt", []byte("content1"))
	mfs.AddFile("dir1/file2.txt", []byte("content2"))
	mfs.AddFile("dir1/dir2/file3.txt", []byte("content3"))
	mfs.AddFile("skipped/file4.txt", []byte("content4"))

	var visited []string
	err := mfs.Walk(".", func(path string, info FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && info.Name() == "skipped" {
			return SkipDir
		}
		visited = append(visited, path)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{".", "dir1", "dir1/dir2", "dir1/dir2/file3.txt", "dir1/file2.txt", "file1.txt"}
	if !reflect.DeepEqual(visited, expected) {
		t.Errorf("expected %v, got %v", expected, visited)
	}
}

func TestMemoryFS_Stat(t *testing.T) {
	mfs := NewMemoryFS()
	mfs.AddFileMode("bin/start.sh", []byte("#!/bin/sh\n"), 0755)

	info, err := mfs.Stat("bin/start.sh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Mode().Perm() != 0755 || !info.Mode().IsRegular() {
		t.Errorf("unexpected mode %v", info.Mode())
	}
	if info.Size() != 10 {
		t.Errorf("expected size 10, got %d", info.Size())
	}

	dir, err := mfs.Stat("bin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dir.IsDir() {
		t.Error("expected bin to be a directory")
	}

	if _, err := mfs.Stat("bin/missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestMemoryFS_PathOperations(t *testing.T) {
	mfs := NewMemoryFS()

	if joined := mfs.Join("dir", "subdir", "file.txt"); joined != "dir/subdir/file.txt" {
		t.Errorf("unexpected Join result %q", joined)
	}
	if base := mfs.Base("dir/subdir/file.txt"); base != "file.txt" {
		t.Errorf("unexpected Base result %q", base)
	}
	if dir := mfs.Dir("dir/subdir/file.txt"); dir != "dir/subdir" {
		t.Errorf("unexpected Dir result %q", dir)
	}
}

func TestMemoryFS_Rel(t *testing.T) {
	mfs := NewMemoryFS()

	tests := []struct {
		base, target, want string
		wantErr            bool
	}{
		{"dir", "dir", ".", false},
		{"dir", "dir/subdir/file.txt", "subdir/file.txt", false},
		{".", "dir/file.txt", "dir/file.txt", false},
		{"dir", "other/file.txt", "", true},
		{"dir", "directory/file.txt", "", true},
	}
	for _, tt := range tests {
		rel, err := mfs.Rel(tt.base, tt.target)
		if (err != nil) != tt.wantErr {
			t.Errorf("Rel(%q, %q) error = %v, wantErr %v", tt.base, tt.target, err, tt.wantErr)
			continue
		}
		if rel != tt.want {
			t.Errorf("Rel(%q, %q) = %q, want %q", tt.base, tt.target, rel, tt.want)
		}
	}
}

func TestFindFile(t *testing.T) {
	mfs := NewMemoryFS()
	mfs.AddFile("app/procfile", []byte("web: node server.js\n"))
	mfs.AddFile("app/compose.yml", []byte("services: {}\n"))

	found, err := FindFile(mfs, "app", "Procfile")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != "app/procfile" {
		t.Errorf("expected case-insensitive match app/procfile, got %q", found)
	}

	found, err = FindFirst(mfs, "app", "compose.yaml", "compose.yml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != "app/compose.yml" {
		t.Errorf("expected app/compose.yml, got %q", found)
	}

	found, err = FindFirst(mfs, "app", "Dockerfile")
	if err != nil || found != "" {
		t.Errorf("expected no match, got %q, %v", found, err)
	}
}
