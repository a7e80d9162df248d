package signals

import (
	"context"
	"strings"

	"github.com/railwayapp/stevedore/internal/detect/types"
	"github.com/railwayapp/stevedore/internal/dockerfile"
	"github.com/railwayapp/stevedore/internal/filesystems"
	"github.com/railwayapp/stevedore/internal/schema"
)

// DockerfileSignal notes a hand-written Dockerfile and the port it exposes
type DockerfileSignal struct {
	filesystem     filesystems.FileSystem
	dockerfilePath string
}

func NewDockerfileSignal(filesystem filesystems.FileSystem) *DockerfileSignal {
	return &DockerfileSignal{filesystem: filesystem}
}

func (d *DockerfileSignal) Confidence() int {
	return 50 // describes an image, not necessarily how the service is meant to run
}

func (d *DockerfileSignal) Reset() {
	d.dockerfilePath = ""
}

func (d *DockerfileSignal) ObserveEntry(ctx context.Context, rootPath string, entry filesystems.DirEntry) error {
	if !entry.IsDir() && strings.EqualFold(entry.Name(), "Dockerfile") {
		d.dockerfilePath = d.filesystem.Join(rootPath, entry.Name())
	}
	return nil
}

func (d *DockerfileSignal) Finding(ctx context.Context) (*types.Finding, error) {
	if d.dockerfilePath == "" {
		return nil, nil
	}

	finding := &types.Finding{
		Dockerfile: d.dockerfilePath,
		Configs:    []types.ConfigRef{{Type: "dockerfile", Path: d.dockerfilePath}},
	}

	content, err := d.filesystem.ReadFile(d.dockerfilePath)
	if err != nil {
		return nil, err
	}

	// an unparsable Dockerfile is still worth reporting; audit explains what is wrong
	spec, err := dockerfile.Parse(content)
	if err != nil {
		return finding, nil
	}
	for _, layer := range spec.LayersWithRole(schema.RoleExpose) {
		for _, arg := range layer.Args {
			if port, err := schema.ParsePort(arg); err == nil {
				finding.Port = port
				return finding, nil
			}
		}
	}

	return finding, nil
}
