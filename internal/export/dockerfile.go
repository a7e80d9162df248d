package export

import (
	"context"

	"github.com/railwayapp/stevedore/internal/dockerfile"
	"github.com/railwayapp/stevedore/internal/schema"
)

type DockerfileExporter struct{}

func (e *DockerfileExporter) Name() string {
	return "dockerfile"
}

func (e *DockerfileExporter) Export(ctx context.Context, plan *schema.Plan) ([]byte, error) {
	return dockerfile.Render(plan.Image)
}

func NewDockerfileExporter() Exporter {
	return &DockerfileExporter{}
}
