package builder

import (
	"archive/tar"
	"bytes"
	"io"
	"testing"

	"github.com/railwayapp/stevedore/internal/filesystems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIgnore(t *testing.T) {
	ignore, err := ParseIgnore([]byte("# local state\nnode_modules\n*.log\n!keep.log\n.git\n"))
	require.NoError(t, err)

	tests := []struct {
		rel      string
		excluded bool
	}{
		{"node_modules", true},
		{"node_modules/express/index.js", true},
		{"debug.log", true},
		{"keep.log", false},
		{".git/HEAD", true},
		{"src/index.js", false},
		{".dockerignore", false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.excluded, ignore.Excludes(tt.rel))
		})
	}
}

func TestLoadIgnore_Missing(t *testing.T) {
	ignore, err := LoadIgnore(filesystems.NewMemoryFS(), ".")
	require.NoError(t, err)
	assert.False(t, ignore.Excludes("anything"))
}

func TestWriteContext(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	mfs.AddFile("svc/package.json", []byte(`{"name":"web"}`))
	mfs.AddFileMode("svc/bin/start.sh", []byte("#!/bin/sh\n"), 0755)
	mfs.AddFile("svc/node_modules/left-pad/index.js", []byte("module.exports = 1"))
	mfs.AddFile("svc/Dockerfile.stevedore", []byte("stale"))

	ignore, err := ParseIgnore([]byte("node_modules\n"))
	require.NoError(t, err)

	var buf bytes.Buffer
	err = WriteContext(&buf, mfs, "svc", ContextOptions{
		Ignore:         ignore,
		Dockerfile:     []byte("FROM node:22-slim\n"),
		DockerfileName: DefaultDockerfileName,
	})
	require.NoError(t, err)

	var names []string
	modes := make(map[string]int64)
	contents := make(map[string]string)
	tr := tar.NewReader(&buf)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		names = append(names, hdr.Name)
		modes[hdr.Name] = hdr.Mode
		contents[hdr.Name] = string(content)
	}

	assert.Equal(t, []string{"bin/", "bin/start.sh", "package.json", DefaultDockerfileName}, names)
	assert.Equal(t, int64(0755), modes["bin/start.sh"]&0777)
	assert.Equal(t, "FROM node:22-slim\n", contents[DefaultDockerfileName])
}

func TestWriteContext_RejectsEscapingDockerfile(t *testing.T) {
	err := WriteContext(io.Discard, filesystems.NewMemoryFS(), ".", ContextOptions{
		Dockerfile:     []byte("FROM scratch\n"),
		DockerfileName: "../Dockerfile",
	})
	assert.Error(t, err)
}
