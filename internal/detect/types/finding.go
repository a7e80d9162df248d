package types

import envtypes "github.com/railwayapp/stevedore/internal/environment/types"

type Runtime string

const (
	RuntimeUnknown Runtime = ""
	RuntimePython  Runtime = "python"
	RuntimeNode    Runtime = "node"
	RuntimeGo      Runtime = "go"
)

// Finding is what a single signal learned about the source tree.
// Signals fill only the fields they know about.
type Finding struct {
	Runtime    Runtime
	BaseImage  string
	Manifests  []string // context-relative, copied before the source
	Install    string   // shell command run against the manifests
	Build      string   // shell command run after the source copy
	Command    []string // service argv, may contain ${HOST} and ${PORT}
	Port       int
	Dockerfile string
	Configs    []ConfigRef
}

type ConfigRef struct {
	Type string // "requirements", "pyproject", "procfile", "compose", "dockerfile", etc.
	Path string // file path
}

// Result is the merged view of every finding
type Result struct {
	Name       string      `json:"name"`
	Runtime    Runtime     `json:"runtime"`
	BaseImage  string      `json:"baseImage"`
	Manifests  []string    `json:"manifests"`
	Install    string      `json:"install"`
	Build      string      `json:"build,omitempty"`
	Command    []string    `json:"command"`
	Port       int         `json:"port,omitempty"`
	Dockerfile string      `json:"dockerfile,omitempty"`
	Configs    []ConfigRef `json:"configs"`
	// Env lists the variables the source declares or reads
	Env []envtypes.EnvVar `json:"env,omitempty"`
}
