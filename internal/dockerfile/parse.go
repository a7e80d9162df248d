package dockerfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"
	"github.com/railwayapp/stevedore/internal/schema"
)

var ErrNoStage = errors.New("Dockerfile has no FROM instruction")

// ManifestNames are dependency manifests and lock files of the supported package managers
var ManifestNames = []string{
	"requirements.txt", "constraints.txt", "pyproject.toml", "poetry.lock", "Pipfile", "Pipfile.lock",
	"package.json", "package-lock.json", "yarn.lock", "pnpm-lock.yaml", ".npmrc",
	"go.mod", "go.sum",
	"Gemfile", "Gemfile.lock", "Cargo.toml", "Cargo.lock", "composer.json", "composer.lock",
}

var installCommands = []string{
	"pip install", "pip3 install", "poetry install", "pipenv install", "uv sync", "uv pip install",
	"npm ci", "npm install", "yarn install", "pnpm install",
	"go mod download",
	"bundle install", "cargo fetch", "composer install",
}

// Parse reads a Dockerfile into the layers of its final stage.
// A stage built FROM an earlier stage inherits that stage's layers.
func Parse(content []byte) (*schema.ImageSpec, error) {
	f, err := parse(content)
	if err != nil {
		return nil, err
	}
	return &schema.ImageSpec{Layers: f.final}, nil
}

// stage is one FROM block; a name is only set for FROM ... AS name
type stage struct {
	name   string
	layers []schema.Layer
}

type file struct {
	stages []stage // earlier stages, in order
	final  []schema.Layer
}

// lookup finds an earlier stage by name or by index as COPY --from accepts both
func (f *file) lookup(ref string) (stage, bool) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n >= 0 && n < len(f.stages) {
			return f.stages[n], true
		}
		return stage{}, false
	}
	for _, s := range f.stages {
		if s.name != "" && s.name == strings.ToLower(ref) {
			return s, true
		}
	}
	return stage{}, false
}

func parse(content []byte) (*file, error) {
	result, err := parser.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Dockerfile: %w", err)
	}

	globalArgs := make(map[string]string) // ARG defaults declared before the first FROM
	f := &file{}
	var current []schema.Layer
	currentName := ""

	for _, node := range result.AST.Children {
		instruction := schema.Instruction(strings.ToUpper(node.Value))
		values := nodeValues(node)

		if instruction == schema.InstructionFrom {
			if len(values) == 0 {
				return nil, fmt.Errorf("line %d: FROM without an image", node.StartLine)
			}
			if current != nil {
				f.stages = append(f.stages, stage{name: currentName, layers: current})
			}

			ref := os.Expand(values[0], func(name string) string { return globalArgs[name] })
			if parent, ok := f.lookup(ref); ok && parent.name != "" {
				current = append([]schema.Layer(nil), parent.layers...)
			} else {
				current = []schema.Layer{{
					Instruction: schema.InstructionFrom,
					Role:        schema.RoleBase,
					Args:        []string{ref},
					Line:        node.StartLine,
				}}
			}

			currentName = ""
			if len(values) == 3 && strings.EqualFold(values[1], "as") {
				currentName = strings.ToLower(values[2])
			}
			continue
		}

		if current == nil {
			if instruction == "ARG" {
				for _, v := range values {
					name, def, _ := strings.Cut(v, "=")
					globalArgs[name] = def
				}
			}
			continue
		}

		if instruction == schema.InstructionEnv {
			values = envPairs(values)
		}

		layer := classify(current, schema.Layer{
			Instruction: instruction,
			Args:        values,
			Exec:        node.Attributes["json"],
			Line:        node.StartLine,
			From:        flagValue(node.Flags, "from"),
		})
		// an artifact built from the source in an earlier stage stands in for the source copy
		if layer.Role == schema.RoleOther && layer.From != "" {
			if from, ok := f.lookup(layer.From); ok && hasRole(from.layers, schema.RoleSource) {
				layer.Role = schema.RoleSource
			}
		}
		current = append(current, layer)
	}

	if current == nil {
		return nil, ErrNoStage
	}
	f.final = current
	return f, nil
}

func hasRole(layers []schema.Layer, role schema.Role) bool {
	for _, l := range layers {
		if l.Role == role {
			return true
		}
	}
	return false
}

// classify assigns the cache role of layer given the layers before it
func classify(previous []schema.Layer, layer schema.Layer) schema.Layer {
	manifestSeen, sourceSeen := false, false
	for _, l := range previous {
		switch l.Role {
		case schema.RoleManifest:
			manifestSeen = true
		case schema.RoleSource:
			sourceSeen = true
		}
	}

	switch layer.Instruction {
	case "ADD", schema.InstructionCopy:
		layer.Instruction = schema.InstructionCopy
		layer.Role = copyRole(layer)
	case schema.InstructionRun:
		layer.Role = schema.RoleOther
		if isInstall(strings.Join(layer.Args, " ")) || (manifestSeen && !sourceSeen) {
			layer.Role = schema.RoleInstall
		}
	case schema.InstructionWorkdir:
		layer.Role = schema.RoleWorkdir
	case schema.InstructionExpose:
		layer.Role = schema.RoleExpose
	case schema.InstructionEnv:
		layer.Role = schema.RoleEnv
	case schema.InstructionEntrypoint:
		layer.Role = schema.RoleEntrypoint
	case schema.InstructionCmd:
		layer.Role = schema.RoleCmd
	default:
		layer.Role = schema.RoleOther
	}
	return layer
}

func copyRole(layer schema.Layer) schema.Role {
	sources := layer.Sources()
	if layer.From != "" {
		if len(sources) == 1 && sources[0] == schema.LauncherBinary {
			return schema.RoleLauncher
		}
		return schema.RoleOther
	}
	if len(sources) == 0 {
		return schema.RoleOther
	}
	for _, src := range sources {
		if !IsManifest(src) {
			return schema.RoleSource
		}
	}
	return schema.RoleManifest
}

// IsManifest reports whether a COPY source only names dependency manifests.
// Globs such as package*.json or go.su[m] count when they match a manifest name.
func IsManifest(src string) bool {
	base := path.Base(strings.TrimSuffix(src, "/"))
	if base == "." || base == "/" || base == "*" {
		return false
	}
	for _, name := range ManifestNames {
		if strings.EqualFold(base, name) {
			return true
		}
		if ok, _ := path.Match(base, name); ok {
			return true
		}
	}
	return strings.HasPrefix(base, "requirements") && strings.HasSuffix(base, ".txt")
}

func isInstall(cmd string) bool {
	for _, install := range installCommands {
		if strings.Contains(cmd, install) {
			return true
		}
	}
	return false
}

func nodeValues(node *parser.Node) []string {
	var values []string
	for n := node.Next; n != nil; n = n.Next {
		values = append(values, n.Value)
	}
	return values
}

// envPairs joins the alternating name and value nodes of ENV into name=value
func envPairs(values []string) []string {
	pairs := make([]string, 0, len(values)/2)
	for i := 0; i+1 < len(values); i += 2 {
		value := values[i+1]
		if len(value) >= 2 && (value[0] == '"' && value[len(value)-1] == '"' || value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
		pairs = append(pairs, values[i]+"="+value)
	}
	return pairs
}

func flagValue(flags []string, name string) string {
	prefix := "--" + name + "="
	for _, flag := range flags {
		if v, ok := strings.CutPrefix(flag, prefix); ok {
			return v
		}
	}
	return ""
}
