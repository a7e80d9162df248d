package dockerfile_test

import (
	"os"
	"strings"
	"testing"

	"github.com/railwayapp/stevedore/internal/detect/types"
	"github.com/railwayapp/stevedore/internal/dockerfile"
	"github.com/railwayapp/stevedore/internal/plan"
	"github.com/railwayapp/stevedore/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastapi = &types.Result{
	Name:      "hello-api",
	Runtime:   types.RuntimePython,
	BaseImage: "python:3.12-slim",
	Manifests: []string{"requirements.txt"},
	Install:   "pip install --no-cache-dir -r requirements.txt",
	Command:   []string{"uvicorn", "src.main:app", "--host", "${HOST}", "--port", "${PORT}"},
}

var nodeBuild = &types.Result{
	Name:      "web",
	Runtime:   types.RuntimeNode,
	BaseImage: "node:22-slim",
	Manifests: []string{"package.json", "package-lock.json"},
	Install:   "npm ci",
	Build:     "npm run build",
	Command:   []string{"node", "dist/server.js"},
	Port:      3000,
}

type strippedLayer struct {
	Instruction schema.Instruction
	Role        schema.Role
	Args        []string
	From        string
	Exec        bool
}

func strip(layers []schema.Layer) []strippedLayer {
	out := make([]strippedLayer, len(layers))
	for i, l := range layers {
		out[i] = strippedLayer{l.Instruction, l.Role, l.Args, l.From, l.Exec}
	}
	return out
}

func TestRender_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		result *types.Result
		opts   plan.Options
	}{
		{"launcher", fastapi, plan.Options{LauncherImage: "ghcr.io/railwayapp/stevedore:1.0.0"}},
		{"launcher from base", fastapi, plan.Options{}},
		{"shell", fastapi, plan.Options{Style: schema.StyleShell}},
		{"literal", fastapi, plan.Options{Style: schema.StyleLiteral, Port: 9000}},
		{"node with build", nodeBuild, plan.Options{Env: map[string]string{"APP_NAME": "my web app"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := plan.New(tt.result, tt.opts)
			require.NoError(t, err)

			content, err := dockerfile.Render(p.Image)
			require.NoError(t, err)

			parsed, err := dockerfile.Parse(content)
			require.NoError(t, err, string(content))
			assert.Equal(t, strip(p.Image.Layers), strip(parsed.Layers), string(content))

			violations, err := dockerfile.Audit(content)
			require.NoError(t, err)
			assert.False(t, dockerfile.HasErrors(violations), "%v", violations)
		})
	}
}

func TestRender_FastAPI(t *testing.T) {
	p, err := plan.New(fastapi, plan.Options{})
	require.NoError(t, err)

	content, err := dockerfile.Render(p.Image)
	require.NoError(t, err)

	expected := `FROM python:3.12-slim
WORKDIR /app
ENV PYTHONDONTWRITEBYTECODE=1 PYTHONUNBUFFERED=1

# Dependencies
COPY requirements.txt ./
RUN pip install --no-cache-dir -r requirements.txt

# Application source
COPY . .

# Service
EXPOSE 8000
ENTRYPOINT ["/usr/local/bin/stevedore","launch","--port-env=PORT","--default-port=8000","--host=0.0.0.0","--"]
CMD ["uvicorn","src.main:app","--host","${HOST}","--port","${PORT}"]
`
	assert.Equal(t, expected, string(content))
}

func TestRender_RejectsMultiStage(t *testing.T) {
	_, err := dockerfile.Render(schema.ImageSpec{Layers: []schema.Layer{
		{Instruction: schema.InstructionFrom, Args: []string{"golang:1.23"}},
		{Instruction: schema.InstructionFrom, Args: []string{"gcr.io/distroless/static:nonroot"}},
	}})
	assert.Error(t, err)
}

func TestAudit_LatestAndInstallAfterSource(t *testing.T) {
	content := `FROM python:latest
WORKDIR /app
COPY . .
RUN pip install -r requirements.txt
CMD uvicorn main:app --host 0.0.0.0 --port 8000
`
	violations, err := dockerfile.Audit([]byte(content))
	require.NoError(t, err)
	require.True(t, dockerfile.HasErrors(violations))

	byRule := make(map[string]schema.Violation)
	for _, v := range violations {
		byRule[v.Rule] = v
	}

	require.Contains(t, byRule, "base-pinned")
	assert.Equal(t, 1, byRule["base-pinned"].Line)
	assert.ErrorIs(t, byRule["base-pinned"], schema.ErrUnpinnedBase)

	require.Contains(t, byRule, "install-before-source")
	assert.Equal(t, 4, byRule["install-before-source"].Line)
	assert.ErrorIs(t, byRule["install-before-source"], schema.ErrLayerOrder)

	assert.Equal(t, schema.SeverityWarning, byRule["exec-handoff"].Severity)
	assert.Equal(t, schema.SeverityWarning, byRule["expose"].Severity)
}

func TestParse_MultiStage(t *testing.T) {
	content := `ARG GO_VERSION=1.23
FROM golang:${GO_VERSION}-bookworm AS build
WORKDIR /src
COPY go.mod go.sum ./
RUN go mod download
COPY . .
RUN CGO_ENABLED=0 go build -o /out/server .

FROM build AS test
RUN go test ./...

FROM gcr.io/distroless/static-debian12:nonroot
WORKDIR /
COPY --from=build /out/server /server
EXPOSE 8080
ENTRYPOINT ["/server"]
`
	spec, err := dockerfile.Parse([]byte(content))
	require.NoError(t, err)

	assert.Equal(t, "gcr.io/distroless/static-debian12:nonroot", spec.BaseImage())
	require.Len(t, spec.Layers, 5)
	assert.Equal(t, "build", spec.Layers[2].From)
	assert.Equal(t, schema.RoleSource, spec.Layers[2].Role)

	violations, err := dockerfile.Audit([]byte(content))
	require.NoError(t, err)
	assert.False(t, dockerfile.HasErrors(violations), "%v", violations)
}

func TestAudit_MultiStageChecksBuildStage(t *testing.T) {
	content := `FROM golang:1.25-bookworm AS build
WORKDIR /src
COPY . .
RUN go mod download
RUN go build -o /out/server .

FROM node:22-slim AS deps
WORKDIR /app
COPY package.json package-lock.json ./
RUN npm ci

FROM gcr.io/distroless/static-debian12:nonroot
WORKDIR /
COPY --from=deps /app/node_modules /node_modules
COPY --from=0 /out/server /server
EXPOSE 8080
ENTRYPOINT ["/server"]
`
	violations, err := dockerfile.Audit([]byte(content))
	require.NoError(t, err)
	require.True(t, dockerfile.HasErrors(violations))

	var rules []string
	for _, v := range violations {
		if v.Severity == schema.SeverityError {
			rules = append(rules, v.Rule)
		}
	}
	assert.Equal(t, []string{"install-before-source"}, rules)
}

func TestAudit_CopyFromImageIsNotSource(t *testing.T) {
	content := `FROM python:3.12-slim
WORKDIR /app
COPY --from=ghcr.io/astral-sh/uv:0.5 /uv /bin/uv
EXPOSE 8000
CMD ["python", "main.py"]
`
	violations, err := dockerfile.Audit([]byte(content))
	require.NoError(t, err)

	var rules []string
	for _, v := range violations {
		rules = append(rules, v.Rule)
	}
	assert.Contains(t, rules, "source-copy")
}

func TestParse_InheritedStage(t *testing.T) {
	content := `FROM python:3.12-slim AS deps
WORKDIR /app
COPY requirements.txt ./
RUN pip install -r requirements.txt

FROM deps
COPY . .
CMD ["uvicorn", "main:app"]
`
	spec, err := dockerfile.Parse([]byte(content))
	require.NoError(t, err)

	assert.Equal(t, "python:3.12-slim", spec.BaseImage())
	roles := make([]schema.Role, 0, len(spec.Layers))
	for _, l := range spec.Layers {
		roles = append(roles, l.Role)
	}
	assert.Equal(t, []schema.Role{
		schema.RoleBase, schema.RoleWorkdir, schema.RoleManifest, schema.RoleInstall, schema.RoleSource, schema.RoleCmd,
	}, roles)
}

func TestParse_GlobManifest(t *testing.T) {
	spec, err := dockerfile.Parse([]byte("FROM node:22-slim\nWORKDIR /app\nCOPY package*.json ./\nRUN npm ci\nCOPY . .\n"))
	require.NoError(t, err)

	assert.Equal(t, schema.RoleManifest, spec.Layers[2].Role)
	assert.Equal(t, schema.RoleInstall, spec.Layers[3].Role)
}

func TestParse_Errors(t *testing.T) {
	_, err := dockerfile.Parse([]byte("ARG PYTHON_VERSION=3.12\n"))
	assert.ErrorIs(t, err, dockerfile.ErrNoStage)

	_, err = dockerfile.Parse([]byte(strings.Repeat(" ", 3)))
	assert.Error(t, err)
}

func TestLauncherImageDockerfile(t *testing.T) {
	content, err := os.ReadFile("../../Dockerfile")
	require.NoError(t, err)

	violations, err := dockerfile.Audit(content)
	require.NoError(t, err)
	assert.False(t, dockerfile.HasErrors(violations), "%v", violations)

	spec, err := dockerfile.Parse(content)
	require.NoError(t, err)
	assert.Equal(t, "scratch", spec.BaseImage())

	copies := spec.LayersWithRole(schema.RoleSource)
	require.Len(t, copies, 1)
	assert.Equal(t, "build", copies[0].From)
	assert.Equal(t, schema.LauncherBinary, copies[0].Dest())

	entrypoint := spec.LayersWithRole(schema.RoleEntrypoint)
	require.Len(t, entrypoint, 1)
	assert.Equal(t, []string{schema.LauncherBinary}, entrypoint[0].Args)
}
