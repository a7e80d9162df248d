package environment

import (
	"context"
	"testing"

	"github.com/railwayapp/stevedore/internal/environment/types"
	"github.com/railwayapp/stevedore/internal/filesystems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findVar(vars []types.EnvVar, name string) *types.EnvVar {
	for i := range vars {
		if vars[i].Name == name {
			return &vars[i]
		}
	}
	return nil
}

func TestScan(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	mfs.AddFile("svc/src/main.py", []byte(`import os

DATABASE_URL = os.environ["DATABASE_URL"]
PORT = int(os.getenv("PORT", "8000"))
DEBUG = os.environ.get('DEBUG', 'false')
`))
	mfs.AddFile("svc/.env.example", []byte("DATABASE_URL=postgres://localhost/dev\nAPI_TOKEN=changeme\n"))
	mfs.AddFile("svc/Dockerfile", []byte("FROM python:3.12-slim\nENV PYTHONUNBUFFERED=1 LOG_LEVEL=\"info\"\n"))
	mfs.AddFile("svc/tests/test_main.py", []byte(`os.getenv("TEST_ONLY")`))
	mfs.AddFile("svc/.venv/lib/site.py", []byte(`os.getenv("VENDORED")`))

	vars, err := NewExtractor(mfs).Scan(context.Background(), "svc")
	require.NoError(t, err)

	port := findVar(vars, "PORT")
	require.NotNil(t, port)
	assert.Equal(t, "8000", port.Default)
	assert.Equal(t, types.EnvTypePort, port.Type)
	assert.False(t, port.Sensitive)

	db := findVar(vars, "DATABASE_URL")
	require.NotNil(t, db)
	assert.True(t, db.Sensitive)
	assert.Empty(t, db.Default)
	assert.Len(t, db.Sources, 2)

	token := findVar(vars, "API_TOKEN")
	require.NotNil(t, token)
	assert.Equal(t, types.EnvTypeSecret, token.Type)

	logLevel := findVar(vars, "LOG_LEVEL")
	require.NotNil(t, logLevel)
	assert.Equal(t, "info", logLevel.Default)

	debug := findVar(vars, "DEBUG")
	require.NotNil(t, debug)
	assert.Equal(t, types.EnvTypeBoolean, debug.Type)

	assert.Nil(t, findVar(vars, "TEST_ONLY"))
	assert.Nil(t, findVar(vars, "VENDORED"))

	p, ok := PortDefault(vars, "PORT")
	assert.True(t, ok)
	assert.Equal(t, 8000, p)
}

func TestLibraryCallDefaults(t *testing.T) {
	mfs := filesystems.NewMemoryFS()
	mfs.AddFile("index.js", []byte("const port = process.env.PORT || 3000;\napp.listen(port);\n"))

	vars, err := NewExtractor(mfs).Scan(context.Background(), ".")
	require.NoError(t, err)

	p, ok := PortDefault(vars, "PORT")
	assert.True(t, ok)
	assert.Equal(t, 3000, p)

	_, ok = PortDefault(vars, "HTTP_PORT")
	assert.False(t, ok)
}

func TestRedact(t *testing.T) {
	pairs := Redact([]string{"PORT=5050", "SECRET_KEY=hunter2", "DATABASE_URL=postgres://u:p@db/app", "EMPTY_TOKEN="})
	assert.Equal(t, []string{"PORT=5050", "SECRET_KEY=[redacted]", "DATABASE_URL=[redacted]", "EMPTY_TOKEN="}, pairs)
}
