package dockerfile

import (
	"errors"
	"fmt"

	"github.com/railwayapp/stevedore/internal/schema"
)

// Audit parses a Dockerfile and checks its final stage against the layer layout rules.
// Stages the final stage copies from are checked too. Only their errors are
// reported, and a stage that never copies the source (a dependency stage) is fine.
func Audit(content []byte) ([]schema.Violation, error) {
	f, err := parse(content)
	if err != nil {
		return nil, err
	}

	violations := schema.CheckImage(schema.ImageSpec{Layers: f.final})

	seen := make(map[string]bool)
	for _, layer := range f.final {
		if layer.From == "" || seen[layer.From] {
			continue
		}
		seen[layer.From] = true
		from, ok := f.lookup(layer.From)
		if !ok {
			continue
		}
		for _, v := range schema.CheckImage(schema.ImageSpec{Layers: from.layers}) {
			if v.Severity != schema.SeverityError || errors.Is(v, schema.ErrNoSource) {
				continue
			}
			v.Message = fmt.Sprintf("stage %s: %s", layer.From, v.Message)
			violations = append(violations, v)
		}
	}
	return violations, nil
}

// HasErrors reports whether any violation is error-severity
func HasErrors(violations []schema.Violation) bool {
	for _, v := range violations {
		if v.Severity == schema.SeverityError {
			return true
		}
	}
	return false
}
