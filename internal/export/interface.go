package export

import (
	"context"
	"fmt"
	"sort"

	"github.com/railwayapp/stevedore/internal/schema"
)

// Exporter defines the interface for exporting plans to various formats
type Exporter interface {
	// Export converts a plan to the target format
	Export(ctx context.Context, plan *schema.Plan) ([]byte, error)

	// Name returns the exporter name (e.g., "dockerfile", "json", "llb")
	Name() string
}

// Registry looks exporters up by name
type Registry map[string]Exporter

// NewRegistry returns a registry holding exporters
func NewRegistry(exporters ...Exporter) Registry {
	r := make(Registry, len(exporters))
	for _, e := range exporters {
		r[e.Name()] = e
	}
	return r
}

// DefaultRegistry holds every built-in format
func DefaultRegistry(llbOpts LLBOptions) Registry {
	return NewRegistry(
		NewDockerfileExporter(),
		NewJSONExporter(),
		NewYAMLExporter(),
		NewLLBExporter(llbOpts),
		NewImageConfigExporter(),
	)
}

func (r Registry) Get(name string) (Exporter, error) {
	e, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("unknown format %q (available: %v)", name, r.Names())
	}
	return e, nil
}

// Names returns the registered format names in sorted order
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
