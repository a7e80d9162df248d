package plan

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/railwayapp/stevedore/internal/detect/types"
	"github.com/railwayapp/stevedore/internal/launch"
	"github.com/railwayapp/stevedore/internal/schema"
)

var ErrNoCommand = errors.New("no service command detected; pass one explicitly")

// Options override what detection found
type Options struct {
	Name          string
	BaseImage     string
	WorkDir       string
	Port          int
	PortEnv       string
	Host          string
	Command       []string
	Style         schema.EntrypointStyle
	LauncherImage string
	LauncherPath  string
	Env           map[string]string
}

var runtimeEnv = map[types.Runtime]map[string]string{
	types.RuntimePython: {
		"PYTHONDONTWRITEBYTECODE": "1",
		"PYTHONUNBUFFERED":        "1",
	},
	types.RuntimeNode: {
		"NODE_ENV": "production",
	},
}

// New lays out the image and launch spec for a detected project.
// Dependency manifests are copied and installed before the rest of the
// source so the install layer is reused while the manifests are unchanged.
func New(result *types.Result, opts Options) (*schema.Plan, error) {
	if result == nil || result.Runtime == types.RuntimeUnknown {
		return nil, fmt.Errorf("cannot plan an image without a detected runtime")
	}

	name := firstNonEmpty(opts.Name, result.Name)
	baseImage := firstNonEmpty(opts.BaseImage, result.BaseImage)
	workDir := firstNonEmpty(opts.WorkDir, schema.DefaultWorkDir)

	port := schema.DefaultPort
	switch {
	case opts.Port != 0:
		port = opts.Port
	case result.Port != 0:
		port = result.Port
	}
	if err := schema.ValidatePort(port); err != nil {
		return nil, err
	}

	command := opts.Command
	if len(command) == 0 {
		command = result.Command
	}
	if len(command) == 0 {
		return nil, ErrNoCommand
	}

	launchSpec := schema.LaunchSpec{
		Style:         opts.Style,
		PortEnv:       opts.PortEnv,
		DefaultPort:   port,
		Host:          firstNonEmpty(opts.Host, schema.DefaultHost),
		Command:       command,
		LauncherImage: opts.LauncherImage,
		LauncherPath:  firstNonEmpty(opts.LauncherPath, schema.DefaultLauncherPath),
	}
	if launchSpec.Style == "" {
		launchSpec.Style = schema.StyleLauncher
	}
	if launchSpec.PortEnv == "" && launchSpec.Style != schema.StyleLiteral {
		launchSpec.PortEnv = schema.DefaultPortEnv
	}
	if launchSpec.Style == schema.StyleLiteral {
		launchSpec.PortEnv = ""
	}

	var layers []schema.Layer
	layers = append(layers, schema.Layer{Instruction: schema.InstructionFrom, Role: schema.RoleBase, Args: []string{baseImage}})

	if launchSpec.Style == schema.StyleLauncher && launchSpec.LauncherImage != "" {
		layers = append(layers, schema.Layer{
			Instruction: schema.InstructionCopy,
			Role:        schema.RoleLauncher,
			From:        launchSpec.LauncherImage,
			Args:        []string{schema.LauncherBinary, launchSpec.LauncherPath},
		})
	}

	layers = append(layers, schema.Layer{Instruction: schema.InstructionWorkdir, Role: schema.RoleWorkdir, Args: []string{workDir}})

	if env := mergeEnv(runtimeEnv[result.Runtime], opts.Env); len(env) > 0 {
		layers = append(layers, schema.Layer{Instruction: schema.InstructionEnv, Role: schema.RoleEnv, Args: env})
	}

	if result.Install != "" && len(result.Manifests) > 0 {
		layers = append(layers,
			schema.Layer{
				Instruction: schema.InstructionCopy,
				Role:        schema.RoleManifest,
				Args:        append(append([]string(nil), result.Manifests...), "./"),
			},
			schema.Layer{Instruction: schema.InstructionRun, Role: schema.RoleInstall, Args: []string{result.Install}},
		)
	}

	layers = append(layers, schema.Layer{Instruction: schema.InstructionCopy, Role: schema.RoleSource, Args: []string{".", "."}})

	if result.Build != "" {
		layers = append(layers, schema.Layer{Instruction: schema.InstructionRun, Role: schema.RoleOther, Args: []string{result.Build}})
	}

	layers = append(layers, schema.Layer{Instruction: schema.InstructionExpose, Role: schema.RoleExpose, Args: []string{strconv.Itoa(port)}})
	layers = append(layers, entrypointLayers(launchSpec)...)

	p := &schema.Plan{
		Name:    name,
		Runtime: string(result.Runtime),
		Image:   schema.ImageSpec{Layers: layers},
		Launch:  launchSpec,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func entrypointLayers(l schema.LaunchSpec) []schema.Layer {
	switch l.Style {
	case schema.StyleShell:
		return []schema.Layer{{
			Instruction: schema.InstructionCmd,
			Role:        schema.RoleCmd,
			Args:        []string{ShellCommand(l)},
		}}
	case schema.StyleLiteral:
		return []schema.Layer{{
			Instruction: schema.InstructionCmd,
			Role:        schema.RoleCmd,
			Exec:        true,
			Args:        launch.Command(l.Command, l.Host, l.DefaultPort),
		}}
	}

	entrypoint := []string{l.LauncherPath, "launch",
		"--port-env=" + l.PortEnv,
		"--default-port=" + strconv.Itoa(l.DefaultPort),
		"--host=" + l.Host,
		"--",
	}
	return []schema.Layer{
		{Instruction: schema.InstructionEntrypoint, Role: schema.RoleEntrypoint, Exec: true, Args: entrypoint},
		{Instruction: schema.InstructionCmd, Role: schema.RoleCmd, Exec: true, Args: l.Command},
	}
}

// ShellCommand renders the fallback-capable shell form:
//
//	export PORT="${PORT:-8000}"; exec uvicorn main:app --host 0.0.0.0 --port "${PORT}"
func ShellCommand(l schema.LaunchSpec) string {
	words := make([]string, 0, len(l.Command))
	for _, arg := range l.Command {
		words = append(words, shellWord(strings.ReplaceAll(arg, schema.HostPlaceholder, l.Host), l.PortEnv))
	}
	return fmt.Sprintf(`export %s="${%s:-%d}"; exec %s`, l.PortEnv, l.PortEnv, l.DefaultPort, strings.Join(words, " "))
}

func shellWord(arg, portEnv string) string {
	arg = strings.ReplaceAll(arg, "$PORT", schema.PortPlaceholder)
	if strings.Contains(arg, schema.PortPlaceholder) {
		parts := strings.Split(arg, schema.PortPlaceholder)
		escaper := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", `$`, `\$`)
		for i, part := range parts {
			parts[i] = escaper.Replace(part)
		}
		return `"` + strings.Join(parts, "${"+portEnv+"}") + `"`
	}
	if arg != "" && strings.IndexFunc(arg, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=@%+,", r))
	}) < 0 {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

func mergeEnv(layers ...map[string]string) []string {
	merged := make(map[string]string)
	for _, m := range layers {
		for k, v := range m {
			merged[k] = v
		}
	}
	pairs := make([]string, 0, len(merged))
	for k, v := range merged {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
