package extractors

import (
	"context"
	"strings"

	"github.com/railwayapp/stevedore/internal/dockerfile"
	"github.com/railwayapp/stevedore/internal/environment/types"
	"github.com/railwayapp/stevedore/internal/schema"
)

type DockerfileExtractor struct{}

func NewDockerfileExtractor() *DockerfileExtractor {
	return &DockerfileExtractor{}
}

func (d *DockerfileExtractor) CanHandle(filename string) bool {
	return strings.Contains(strings.ToLower(filename), "dockerfile")
}

func (d *DockerfileExtractor) Confidence() int {
	return 60
}

// Extract reports the ENV instructions of the final stage
func (d *DockerfileExtractor) Extract(ctx context.Context, filename string, content []byte) ([]types.EnvResult, error) {
	spec, err := dockerfile.Parse(content)
	if err != nil {
		return nil, err
	}

	var results []types.EnvResult
	for _, layer := range spec.LayersWithRole(schema.RoleEnv) {
		for _, pair := range layer.Args {
			name, value, _ := strings.Cut(pair, "=")
			if name == "" || types.ShouldIgnore(name) {
				continue
			}
			results = append(results, newResult(name, value, "dockerfile:"+filename, d.Confidence()))
		}
	}
	return results, nil
}
