package export

import (
	"context"
	"encoding/json"

	"github.com/railwayapp/stevedore/internal/schema"
)

type JSONExporter struct{}

func (e *JSONExporter) Name() string {
	return "json"
}

func (e *JSONExporter) Export(ctx context.Context, plan *schema.Plan) ([]byte, error) {
	return json.MarshalIndent(plan, "", "  ")
}

func NewJSONExporter() Exporter {
	return &JSONExporter{}
}
