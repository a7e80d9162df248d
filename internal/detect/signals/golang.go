package signals

import (
	"bufio"
	"context"
	"strings"

	"github.com/railwayapp/stevedore/internal/detect/types"
	"github.com/railwayapp/stevedore/internal/filesystems"
)

const defaultGoImage = "golang:1.25-bookworm"

type GoSignal struct {
	filesystem filesystems.FileSystem
	rootPath   string
	files      map[string]bool
}

func NewGoSignal(filesystem filesystems.FileSystem) *GoSignal {
	return &GoSignal{filesystem: filesystem}
}

func (g *GoSignal) Confidence() int {
	return 70
}

func (g *GoSignal) Reset() {
	g.rootPath = ""
	g.files = make(map[string]bool)
}

func (g *GoSignal) ObserveEntry(ctx context.Context, rootPath string, entry filesystems.DirEntry) error {
	g.rootPath = rootPath
	if !entry.IsDir() {
		g.files[entry.Name()] = true
	}
	return nil
}

func (g *GoSignal) Finding(ctx context.Context) (*types.Finding, error) {
	if !g.files["go.mod"] {
		return nil, nil
	}

	path := g.filesystem.Join(g.rootPath, "go.mod")
	content, err := g.filesystem.ReadFile(path)
	if err != nil {
		return nil, err
	}

	finding := &types.Finding{
		Runtime:   types.RuntimeGo,
		BaseImage: defaultGoImage,
		Manifests: []string{"go.mod"},
		Install:   "go mod download",
		Build:     "CGO_ENABLED=0 go build -trimpath -o /usr/local/bin/server .",
		Command:   []string{"/usr/local/bin/server"},
		Configs:   []types.ConfigRef{{Type: "gomod", Path: path}},
	}
	if g.files["go.sum"] {
		finding.Manifests = append(finding.Manifests, "go.sum")
	}

	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	for scanner.Scan() {
		version, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "go ")
		if !ok {
			continue
		}
		// go 1.22.3 -> golang:1.22-bookworm
		parts := strings.Split(strings.TrimSpace(version), ".")
		if len(parts) >= 2 {
			finding.BaseImage = "golang:" + parts[0] + "." + parts[1] + "-bookworm"
		}
		break
	}

	return finding, nil
}
