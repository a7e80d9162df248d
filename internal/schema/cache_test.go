package schema

import (
	"strings"
	"testing"

	"github.com/railwayapp/stevedore/internal/filesystems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastapiTree(mainPy string) *filesystems.MemoryFS {
	mfs := filesystems.NewMemoryFS()
	mfs.AddFile("svc/requirements.txt", []byte("fastapi==0.115.0\nuvicorn==0.30.6\n"))
	mfs.AddFile("svc/src/main.py", []byte(mainPy))
	mfs.AddFile("svc/.git/HEAD", []byte("ref: refs/heads/main\n"))
	return mfs
}

func excludeGit(rel string) bool {
	return rel == ".git" || strings.HasPrefix(rel, ".git/")
}

func TestCacheKeys_SourceEditKeepsInstallLayer(t *testing.T) {
	spec := layoutSpec()

	before, err := CacheKeys(spec, fastapiTree("app = FastAPI()\n"), "svc", excludeGit)
	require.NoError(t, err)
	after, err := CacheKeys(spec, fastapiTree("app = FastAPI(title=\"hello\")\n"), "svc", excludeGit)
	require.NoError(t, err)

	require.Len(t, before, len(spec.Layers))
	for i, layer := range spec.Layers {
		switch layer.Role {
		case RoleBase, RoleWorkdir, RoleManifest, RoleInstall:
			assert.Equal(t, before[i], after[i], "layer %d (%s) should be reused", i, layer.Role)
		case RoleSource, RoleExpose, RoleCmd:
			assert.NotEqual(t, before[i], after[i], "layer %d (%s) should be rebuilt", i, layer.Role)
		}
	}
}

func TestCacheKeys_ManifestEditInvalidatesInstall(t *testing.T) {
	spec := layoutSpec()
	tree := fastapiTree("app = FastAPI()\n")

	before, err := CacheKeys(spec, tree, "svc", excludeGit)
	require.NoError(t, err)

	tree.AddFile("svc/requirements.txt", []byte("fastapi==0.115.2\nuvicorn==0.30.6\n"))
	after, err := CacheKeys(spec, tree, "svc", excludeGit)
	require.NoError(t, err)

	assert.Equal(t, before[1], after[1])
	assert.NotEqual(t, before[2], after[2])
	assert.NotEqual(t, before[3], after[3])
}

func TestCacheKeys_ExcludedFilesDoNotCount(t *testing.T) {
	spec := layoutSpec()
	tree := fastapiTree("app = FastAPI()\n")

	before, err := CacheKeys(spec, tree, "svc", excludeGit)
	require.NoError(t, err)

	tree.AddFile("svc/.git/HEAD", []byte("ref: refs/heads/feature\n"))
	after, err := CacheKeys(spec, tree, "svc", excludeGit)
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestCacheKeys_ModeChangeInvalidatesSource(t *testing.T) {
	spec := layoutSpec()
	tree := fastapiTree("app = FastAPI()\n")

	before, err := CacheKeys(spec, tree, "svc", nil)
	require.NoError(t, err)

	tree.AddFileMode("svc/src/main.py", []byte("app = FastAPI()\n"), 0755)
	after, err := CacheKeys(spec, tree, "svc", nil)
	require.NoError(t, err)

	assert.Equal(t, before[3], after[3])
	assert.NotEqual(t, before[4], after[4])
}

func TestCacheKeys_MissingManifest(t *testing.T) {
	spec := layoutSpec()
	mfs := filesystems.NewMemoryFS()
	mfs.AddFile("svc/src/main.py", []byte("app = None\n"))

	_, err := CacheKeys(spec, mfs, "svc", nil)
	assert.ErrorContains(t, err, "matches no files")
}
