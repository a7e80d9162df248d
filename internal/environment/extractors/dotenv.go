package extractors

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/railwayapp/stevedore/internal/environment/types"
)

type DotEnvExtractor struct{}

func NewDotEnvExtractor() *DotEnvExtractor {
	return &DotEnvExtractor{}
}

func (d *DotEnvExtractor) CanHandle(filename string) bool {
	return strings.HasPrefix(strings.ToLower(path.Base(filename)), ".env")
}

func (d *DotEnvExtractor) Confidence() int {
	return 85
}

func (d *DotEnvExtractor) Extract(ctx context.Context, filename string, content []byte) ([]types.EnvResult, error) {
	env, err := godotenv.Unmarshal(string(content))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	confidence := d.fileConfidence(path.Base(filename))
	results := make([]types.EnvResult, 0, len(names))
	for _, name := range names {
		if types.ShouldIgnore(name) {
			continue
		}
		results = append(results, newResult(name, env[name], "dotenv:"+filename, confidence))
	}
	return results, nil
}

func (d *DotEnvExtractor) fileConfidence(base string) int {
	switch {
	case strings.Contains(base, "example"), strings.Contains(base, "sample"):
		return 30
	case strings.Contains(base, "production"):
		return 90
	case base == ".env":
		return d.Confidence()
	default:
		return 75
	}
}
