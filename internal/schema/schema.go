package schema

// Plan is everything needed to build and start one service image
type Plan struct {
	Name    string     `json:"name" yaml:"name"`
	Runtime string     `json:"runtime" yaml:"runtime"`
	Image   ImageSpec  `json:"image" yaml:"image"`
	Launch  LaunchSpec `json:"launch" yaml:"launch"`
}

// ImageSpec is the ordered layer list of an image
type ImageSpec struct {
	Layers []Layer `json:"layers" yaml:"layers"`
}

type Instruction string

const (
	InstructionFrom       Instruction = "FROM"
	InstructionWorkdir    Instruction = "WORKDIR"
	InstructionCopy       Instruction = "COPY"
	InstructionRun        Instruction = "RUN"
	InstructionEnv        Instruction = "ENV"
	InstructionExpose     Instruction = "EXPOSE"
	InstructionEntrypoint Instruction = "ENTRYPOINT"
	InstructionCmd        Instruction = "CMD"
)

// Role says what a layer contributes to the build-cache layout
type Role string

const (
	RoleBase       Role = "base"
	RoleWorkdir    Role = "workdir"
	RoleLauncher   Role = "launcher"   // entrypoint binary copied from another image
	RoleManifest   Role = "manifest"   // dependency manifest copy
	RoleInstall    Role = "install"    // dependency installation
	RoleSource     Role = "source"     // application source copy
	RoleExpose     Role = "expose"
	RoleEnv        Role = "env"
	RoleEntrypoint Role = "entrypoint"
	RoleCmd        Role = "cmd"
	RoleOther      Role = "other"
)

// Layer is one {source-set, operation} pair.
// For COPY, Args holds the sources followed by the destination.
type Layer struct {
	Instruction Instruction `json:"instruction" yaml:"instruction"`
	Role        Role        `json:"role" yaml:"role"`
	Args        []string    `json:"args" yaml:"args"`
	From        string      `json:"from,omitempty" yaml:"from,omitempty"` // COPY --from
	Exec        bool        `json:"exec,omitempty" yaml:"exec,omitempty"` // JSON (exec) form
	Line        int         `json:"line,omitempty" yaml:"line,omitempty"` // source line when parsed
}

// Sources returns the source paths of a COPY layer
func (l Layer) Sources() []string {
	if l.Instruction != InstructionCopy || len(l.Args) < 2 {
		return nil
	}
	return l.Args[:len(l.Args)-1]
}

// Dest returns the destination path of a COPY layer
func (l Layer) Dest() string {
	if l.Instruction != InstructionCopy || len(l.Args) == 0 {
		return ""
	}
	return l.Args[len(l.Args)-1]
}

// EntrypointStyle selects how the container turns the environment into a port
type EntrypointStyle string

const (
	// StyleLauncher execs the service through `stevedore launch`, which validates the port
	StyleLauncher EntrypointStyle = "launcher"
	// StyleShell relies on `${PORT:-default}` expansion in a shell-form CMD followed by exec
	StyleShell EntrypointStyle = "shell"
	// StyleLiteral hardcodes the default port; the environment is never consulted
	StyleLiteral EntrypointStyle = "literal"
)

// LaunchSpec describes how the service process is started
type LaunchSpec struct {
	Style         EntrypointStyle `json:"style" yaml:"style"`
	PortEnv       string          `json:"portEnv,omitempty" yaml:"portEnv,omitempty"`
	DefaultPort   int             `json:"defaultPort" yaml:"defaultPort"`
	Host          string          `json:"host" yaml:"host"`
	Command       []string        `json:"command" yaml:"command"`
	LauncherImage string          `json:"launcherImage,omitempty" yaml:"launcherImage,omitempty"`
	LauncherPath  string          `json:"launcherPath,omitempty" yaml:"launcherPath,omitempty"`
}

const (
	DefaultPort         = 8000
	DefaultPortEnv      = "PORT"
	DefaultHost         = "0.0.0.0"
	DefaultWorkDir      = "/app"
	DefaultLauncherPath = "/usr/local/bin/stevedore"

	// DefaultLauncherImage ships the launcher binary at LauncherBinary
	DefaultLauncherImage = "ghcr.io/railwayapp/stevedore:1"

	// LauncherBinary is where the stevedore binary lives inside the launcher image
	LauncherBinary = "/stevedore"

	HostPlaceholder = "${HOST}"
	PortPlaceholder = "${PORT}"
)

// LayersWithRole returns the layers tagged with role, in order
func (s ImageSpec) LayersWithRole(role Role) []Layer {
	var layers []Layer
	for _, layer := range s.Layers {
		if layer.Role == role {
			layers = append(layers, layer)
		}
	}
	return layers
}

// BaseImage returns the reference of the first FROM layer
func (s ImageSpec) BaseImage() string {
	for _, layer := range s.Layers {
		if layer.Instruction == InstructionFrom && len(layer.Args) > 0 {
			return layer.Args[0]
		}
	}
	return ""
}

// WorkDir returns the last WORKDIR set by the spec
func (s ImageSpec) WorkDir() string {
	dir := ""
	for _, layer := range s.Layers {
		if layer.Instruction == InstructionWorkdir && len(layer.Args) > 0 {
			dir = layer.Args[0]
		}
	}
	return dir
}
