package environment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromPairs(t *testing.T) {
	s := FromPairs([]string{"PORT=3000", "EMPTY=", "BROKEN", "=nokey", "URL=a=b", "PORT=4000"})

	port, ok := s.Lookup("PORT")
	assert.True(t, ok)
	assert.Equal(t, "4000", port, "later entries win")

	empty, ok := s.Lookup("EMPTY")
	assert.True(t, ok)
	assert.Empty(t, empty)

	url, _ := s.Lookup("URL")
	assert.Equal(t, "a=b", url)

	_, ok = s.Lookup("BROKEN")
	assert.False(t, ok)
	assert.Equal(t, 3, s.Len())
}

func TestFromOS(t *testing.T) {
	t.Setenv("STEVEDORE_SNAPSHOT_TEST", "yes")
	s := FromOS()

	require.NoError(t, os.Setenv("STEVEDORE_SNAPSHOT_TEST", "changed"))
	v, _ := s.Lookup("STEVEDORE_SNAPSHOT_TEST")
	assert.Equal(t, "yes", v, "snapshot must not follow later changes")
}

func TestLoad_LaterFilesOverride(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, ".env")
	local := filepath.Join(dir, ".env.local")
	require.NoError(t, os.WriteFile(base, []byte("PORT=3000\nAPP_ENV=dev\n"), 0644))
	require.NoError(t, os.WriteFile(local, []byte("PORT=5050\n"), 0644))

	s, err := Load(base, local)
	require.NoError(t, err)

	port, _ := s.Lookup("PORT")
	assert.Equal(t, "5050", port)
	appEnv, _ := s.Lookup("APP_ENV")
	assert.Equal(t, "dev", appEnv)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}

func TestMergeAndWith(t *testing.T) {
	a := FromPairs([]string{"A=1", "B=1"})
	b := FromPairs([]string{"B=2"})

	merged := a.Merge(b).With("C", "3")
	assert.Equal(t, []string{"A=1", "B=2", "C=3"}, merged.Pairs())

	v, _ := a.Lookup("B")
	assert.Equal(t, "1", v, "merge must not mutate the receiver")
}
