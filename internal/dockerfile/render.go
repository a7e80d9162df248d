package dockerfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/railwayapp/stevedore/internal/schema"
)

// Render writes the layers of an image spec as a Dockerfile
func Render(spec schema.ImageSpec) ([]byte, error) {
	var buf bytes.Buffer

	for i, layer := range spec.Layers {
		if layer.Instruction == schema.InstructionFrom && i > 0 {
			return nil, fmt.Errorf("layer %d: only single-stage images can be rendered", i)
		}
		if len(layer.Args) == 0 {
			return nil, fmt.Errorf("layer %d: %s has no arguments", i, layer.Instruction)
		}
		if comment := roleComments[layer.Role]; comment != "" {
			if i > 0 {
				buf.WriteByte('\n')
			}
			fmt.Fprintf(&buf, "# %s\n", comment)
		}

		line, err := renderLayer(layer)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	return buf.Bytes(), nil
}

var roleComments = map[schema.Role]string{
	schema.RoleManifest: "Dependencies",
	schema.RoleSource:   "Application source",
	schema.RoleExpose:   "Service",
}

func renderLayer(layer schema.Layer) (string, error) {
	switch layer.Instruction {
	case schema.InstructionFrom, schema.InstructionWorkdir:
		return fmt.Sprintf("%s %s", layer.Instruction, layer.Args[0]), nil

	case schema.InstructionCopy:
		if len(layer.Args) < 2 {
			return "", fmt.Errorf("COPY needs a source and a destination")
		}
		prefix := "COPY "
		if layer.From != "" {
			prefix += "--from=" + layer.From + " "
		}
		if needsJSON(layer.Args) {
			args, err := jsonArray(layer.Args)
			if err != nil {
				return "", err
			}
			return prefix + args, nil
		}
		return prefix + strings.Join(layer.Args, " "), nil

	case schema.InstructionEnv:
		pairs := make([]string, 0, len(layer.Args))
		for _, arg := range layer.Args {
			key, value, _ := strings.Cut(arg, "=")
			pairs = append(pairs, key+"="+quoteEnv(value))
		}
		return "ENV " + strings.Join(pairs, " "), nil

	case schema.InstructionExpose:
		return "EXPOSE " + strings.Join(layer.Args, " "), nil

	case schema.InstructionRun, schema.InstructionCmd, schema.InstructionEntrypoint:
		if layer.Exec {
			args, err := jsonArray(layer.Args)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s %s", layer.Instruction, args), nil
		}
		return fmt.Sprintf("%s %s", layer.Instruction, strings.Join(layer.Args, " ")), nil
	}

	return "", fmt.Errorf("unsupported instruction %s", layer.Instruction)
}

func needsJSON(args []string) bool {
	for _, arg := range args {
		if strings.ContainsAny(arg, " \t") {
			return true
		}
	}
	return false
}

func jsonArray(args []string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(args); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func quoteEnv(value string) string {
	if value != "" && !strings.ContainsAny(value, " \t\"'$\\") {
		return value
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`).Replace(value) + `"`
}
