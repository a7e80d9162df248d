package detect

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/railwayapp/stevedore/internal/detect/signals"
	"github.com/railwayapp/stevedore/internal/detect/types"
	"github.com/railwayapp/stevedore/internal/environment"
	"github.com/railwayapp/stevedore/internal/filesystems"
	"github.com/railwayapp/stevedore/internal/schema"
)

var ErrNoRuntime = errors.New("no supported runtime found")

type Detector struct {
	signals    []Signal
	filesystem filesystems.FileSystem
	env        *environment.Extractor
}

type Signal interface {
	// Called for each entry at the root of the source tree
	ObserveEntry(ctx context.Context, rootPath string, entry filesystems.DirEntry) error

	// Called after all entries have been observed; nil means nothing was found
	Finding(ctx context.Context) (*types.Finding, error)

	// Reset internal state before processing a new tree
	Reset()

	// Confidence level for conflict resolution
	Confidence() int // 0-100
}

func NewDetector(filesystem filesystems.FileSystem, signals ...Signal) *Detector {
	if len(signals) == 0 {
		signals = DefaultSignals(filesystem)
	}

	return &Detector{
		signals:    signals,
		filesystem: filesystem,
		env:        environment.NewExtractor(filesystem),
	}
}

func DefaultSignals(filesystem filesystems.FileSystem) []Signal {
	return []Signal{
		signals.NewPythonSignal(filesystem),
		signals.NewNodeSignal(filesystem),
		signals.NewGoSignal(filesystem),
		signals.NewProcfileSignal(filesystem),
		signals.NewComposeSignal(filesystem),
		signals.NewDockerfileSignal(filesystem),
	}
}

type scoredFinding struct {
	finding    *types.Finding
	confidence int
}

// Detect inspects the root of the source tree and merges every signal's finding.
// For each field the highest-confidence signal that set it wins.
func (d *Detector) Detect(ctx context.Context, rootPath string) (*types.Result, error) {
	basePath := filesystems.GetBasePath(rootPath)

	for _, signal := range d.signals {
		signal.Reset()
	}

	for entry, err := range d.filesystem.ReadDir(basePath) {
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", basePath, err)
		}
		for _, signal := range d.signals {
			if err := signal.ObserveEntry(ctx, basePath, entry); err != nil {
				return nil, err
			}
		}
	}

	var findings []scoredFinding
	for _, signal := range d.signals {
		finding, err := signal.Finding(ctx)
		if err != nil {
			return nil, err
		}
		if finding != nil {
			findings = append(findings, scoredFinding{finding: finding, confidence: signal.Confidence()})
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].confidence > findings[j].confidence
	})

	result := merge(findings)
	result.Name = projectName(basePath)

	env, err := d.env.Scan(ctx, basePath)
	if err != nil {
		return nil, err
	}
	result.Env = env
	// the source's own default is the last port hint
	if result.Port == 0 {
		if port, ok := environment.PortDefault(env, schema.DefaultPortEnv); ok {
			result.Port = port
		}
	}

	if result.Runtime == types.RuntimeUnknown {
		return result, ErrNoRuntime
	}
	return result, nil
}

func merge(findings []scoredFinding) *types.Result {
	result := &types.Result{}
	configSet := make(map[string]bool)

	// the runtime signal decides everything tied to the toolchain
	for _, sf := range findings {
		f := sf.finding
		if f.Runtime == types.RuntimeUnknown {
			continue
		}
		result.Runtime = f.Runtime
		result.BaseImage = f.BaseImage
		result.Manifests = f.Manifests
		result.Install = f.Install
		result.Build = f.Build
		break
	}

	for _, sf := range findings {
		f := sf.finding
		if result.Command == nil && len(f.Command) > 0 {
			result.Command = f.Command
		}
		if result.Port == 0 && f.Port > 0 {
			result.Port = f.Port
		}
		if result.Dockerfile == "" {
			result.Dockerfile = f.Dockerfile
		}
		for _, config := range f.Configs {
			key := config.Type + ":" + config.Path
			if !configSet[key] {
				configSet[key] = true
				result.Configs = append(result.Configs, config)
			}
		}
	}

	return result
}

func projectName(basePath string) string {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return filepath.Base(basePath)
	}
	return filepath.Base(abs)
}
