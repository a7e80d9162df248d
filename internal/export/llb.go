package export

import (
	"bytes"
	"context"

	"github.com/railwayapp/stevedore/internal/buildgraph"
	"github.com/railwayapp/stevedore/internal/schema"
)

// LLBOptions are passed through to the build graph
type LLBOptions = buildgraph.Options

// LLBExporter writes the plan as a serialised BuildKit definition for `buildctl build`
type LLBExporter struct {
	opts LLBOptions
}

func (e *LLBExporter) Name() string {
	return "llb"
}

func (e *LLBExporter) Export(ctx context.Context, plan *schema.Plan) ([]byte, error) {
	def, err := buildgraph.Definition(ctx, plan.Image, e.opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := buildgraph.WriteTo(def, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func NewLLBExporter(opts LLBOptions) Exporter {
	return &LLBExporter{opts: opts}
}
