package signals

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/railwayapp/stevedore/internal/detect/types"
	"github.com/railwayapp/stevedore/internal/filesystems"
)

const defaultPythonImage = "python:3.12-slim"

// entry modules probed in order, relative to the source root
var pythonEntryModules = []struct {
	path   string
	module string
}{
	{"main.py", "main:app"},
	{"src/main.py", "src.main:app"},
	{"app/main.py", "app.main:app"},
	{"app.py", "app:app"},
}

var requiresPythonPattern = regexp.MustCompile(`3\.(\d+)`)

type PythonSignal struct {
	filesystem filesystems.FileSystem
	rootPath   string
	files      map[string]bool
}

func NewPythonSignal(filesystem filesystems.FileSystem) *PythonSignal {
	return &PythonSignal{filesystem: filesystem}
}

func (p *PythonSignal) Confidence() int {
	return 80 // explicit dependency manifest
}

func (p *PythonSignal) Reset() {
	p.rootPath = ""
	p.files = make(map[string]bool)
}

func (p *PythonSignal) ObserveEntry(ctx context.Context, rootPath string, entry filesystems.DirEntry) error {
	p.rootPath = rootPath
	if !entry.IsDir() {
		p.files[strings.ToLower(entry.Name())] = true
	}
	return nil
}

type pyProject struct {
	Project struct {
		Name           string   `toml:"name"`
		RequiresPython string   `toml:"requires-python"`
		Dependencies   []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry *struct {
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func (p *PythonSignal) Finding(ctx context.Context) (*types.Finding, error) {
	var finding *types.Finding

	switch {
	case p.files["requirements.txt"]:
		finding = p.fromRequirements()
	case p.files["pyproject.toml"]:
		f, err := p.fromPyProject()
		if err != nil {
			return nil, err
		}
		finding = f
	default:
		return nil, nil
	}

	finding.Runtime = types.RuntimePython
	if finding.BaseImage == "" {
		finding.BaseImage = defaultPythonImage
	}
	finding.Command = []string{"uvicorn", p.entryModule(), "--host", "${HOST}", "--port", "${PORT}"}
	return finding, nil
}

func (p *PythonSignal) fromRequirements() *types.Finding {
	path := p.filesystem.Join(p.rootPath, "requirements.txt")
	finding := &types.Finding{
		Manifests: []string{"requirements.txt"},
		Install:   "pip install --no-cache-dir -r requirements.txt",
		Configs:   []types.ConfigRef{{Type: "requirements", Path: path}},
	}

	// a constraints file is referenced from requirements.txt and must be in the same layer
	if content, err := p.filesystem.ReadFile(path); err == nil {
		scanner := bufio.NewScanner(strings.NewReader(string(content)))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			for _, flag := range []string{"-c ", "-r ", "--constraint ", "--requirement "} {
				if ref, ok := strings.CutPrefix(line, flag); ok && p.files[strings.ToLower(strings.TrimSpace(ref))] {
					finding.Manifests = append(finding.Manifests, strings.TrimSpace(ref))
				}
			}
		}
	}

	return finding
}

func (p *PythonSignal) fromPyProject() (*types.Finding, error) {
	path := p.filesystem.Join(p.rootPath, "pyproject.toml")
	content, err := p.filesystem.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var project pyProject
	if _, err := toml.Decode(string(content), &project); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	finding := &types.Finding{
		Manifests: []string{"pyproject.toml"},
		Configs:   []types.ConfigRef{{Type: "pyproject", Path: path}},
	}

	if m := requiresPythonPattern.FindStringSubmatch(project.Project.RequiresPython); m != nil {
		finding.BaseImage = "python:3." + m[1] + "-slim"
	}

	switch {
	case project.Tool.Poetry != nil:
		if p.files["poetry.lock"] {
			finding.Manifests = append(finding.Manifests, "poetry.lock")
		}
		finding.Install = "pip install --no-cache-dir poetry && poetry config virtualenvs.create false && poetry install --no-root --only main"
	case len(project.Project.Dependencies) > 0:
		quoted := make([]string, len(project.Project.Dependencies))
		for i, dep := range project.Project.Dependencies {
			quoted[i] = "'" + strings.ReplaceAll(dep, "'", `'\''`) + "'"
		}
		finding.Install = "pip install --no-cache-dir " + strings.Join(quoted, " ")
	}

	return finding, nil
}

func (p *PythonSignal) entryModule() string {
	for _, candidate := range pythonEntryModules {
		info, err := p.filesystem.Stat(p.filesystem.Join(p.rootPath, candidate.path))
		if err == nil && !info.IsDir() {
			return candidate.module
		}
	}
	return pythonEntryModules[0].module
}
