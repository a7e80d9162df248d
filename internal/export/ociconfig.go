package export

import (
	"context"

	ocispecs "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/railwayapp/stevedore/internal/buildgraph"
	"github.com/railwayapp/stevedore/internal/schema"
)

// ImageConfigExporter writes the OCI image config that accompanies the llb
// format: entrypoint, command, exposed port, working directory and env
type ImageConfigExporter struct{}

func (e *ImageConfigExporter) Name() string {
	return "oci-config"
}

func (e *ImageConfigExporter) Export(ctx context.Context, plan *schema.Plan) ([]byte, error) {
	img, err := buildgraph.ImageConfig(plan.Image, ocispecs.Platform{})
	if err != nil {
		return nil, err
	}
	return buildgraph.MarshalImageConfig(img)
}

func NewImageConfigExporter() Exporter {
	return &ImageConfigExporter{}
}
