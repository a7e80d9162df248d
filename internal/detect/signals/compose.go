package signals

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	composetypes "github.com/compose-spec/compose-go/v2/types"
	"github.com/railwayapp/stevedore/internal/detect/types"
	"github.com/railwayapp/stevedore/internal/filesystems"
)

var composeFileNames = []string{"compose.yaml", "compose.yml", "docker-compose.yaml", "docker-compose.yml"}

// ComposeSignal reads the container port of the compose service built from the source root.
// Only that one service is looked at; the rest of the composition is ignored.
type ComposeSignal struct {
	filesystem filesystems.FileSystem
	rootPath   string
	configPath string
}

func NewComposeSignal(filesystem filesystems.FileSystem) *ComposeSignal {
	return &ComposeSignal{filesystem: filesystem}
}

func (c *ComposeSignal) Confidence() int {
	return 60
}

func (c *ComposeSignal) Reset() {
	c.rootPath = ""
	c.configPath = ""
}

func (c *ComposeSignal) ObserveEntry(ctx context.Context, rootPath string, entry filesystems.DirEntry) error {
	c.rootPath = rootPath
	if entry.IsDir() || c.configPath != "" {
		return nil
	}
	for _, name := range composeFileNames {
		if strings.EqualFold(entry.Name(), name) {
			c.configPath = c.filesystem.Join(rootPath, entry.Name())
			break
		}
	}
	return nil
}

func (c *ComposeSignal) Finding(ctx context.Context) (*types.Finding, error) {
	if c.configPath == "" {
		return nil, nil
	}

	content, err := c.filesystem.ReadFile(c.configPath)
	if err != nil {
		return nil, err
	}

	workingDir, err := filepath.Abs(c.rootPath)
	if err != nil {
		return nil, err
	}

	project, err := loader.LoadWithContext(ctx, composetypes.ConfigDetails{
		WorkingDir: workingDir,
		ConfigFiles: []composetypes.ConfigFile{
			{Filename: c.configPath, Content: content},
		},
		Environment: composetypes.Mapping{},
	}, func(o *loader.Options) {
		o.SetProjectName(loader.NormalizeProjectName(filepath.Base(workingDir)), true)
		o.SkipConsistencyCheck = true
		o.ResolvePaths = true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load compose project %s: %w", c.configPath, err)
	}

	// the first service by name wins when several build from the root
	names := make([]string, 0, len(project.Services))
	for name := range project.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		service := project.Services[name]
		if service.Build == nil || !sameDir(service.Build.Context, workingDir) {
			continue
		}

		port := servicePort(service)
		if port == 0 {
			continue
		}

		return &types.Finding{
			Port:    port,
			Configs: []types.ConfigRef{{Type: "compose", Path: c.configPath}},
		}, nil
	}

	return nil, nil
}

func sameDir(buildContext, workingDir string) bool {
	if buildContext == "" {
		buildContext = "."
	}
	if !filepath.IsAbs(buildContext) {
		buildContext = filepath.Join(workingDir, buildContext)
	}
	return filepath.Clean(buildContext) == filepath.Clean(workingDir)
}

// servicePort prefers an explicit PORT variable, then the first container port
func servicePort(service composetypes.ServiceConfig) int {
	if value, ok := service.Environment["PORT"]; ok && value != nil {
		if port, err := strconv.Atoi(*value); err == nil && port > 0 && port <= 65535 {
			return port
		}
	}
	for _, p := range service.Ports {
		if p.Target > 0 && p.Target <= 65535 {
			return int(p.Target)
		}
	}
	for _, expose := range service.Expose {
		if port, err := strconv.Atoi(strings.Split(expose, "/")[0]); err == nil && port > 0 && port <= 65535 {
			return port
		}
	}
	return 0
}
