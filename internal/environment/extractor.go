package environment

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/railwayapp/stevedore/internal/environment/extractors"
	"github.com/railwayapp/stevedore/internal/environment/types"
	"github.com/railwayapp/stevedore/internal/filesystems"
)

// maxScanSize skips generated bundles and data files
const maxScanSize = 1 << 20

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, ".venv": true, "venv": true, "__pycache__": true,
	"vendor": true, "dist": true, ".next": true, "site-packages": true,
}

// Extractor finds the environment variables a source tree declares or reads
type Extractor struct {
	filesystem filesystems.FileSystem
	extractors []extractors.ContentExtractor
}

func NewExtractor(filesystem filesystems.FileSystem) *Extractor {
	return &Extractor{
		filesystem: filesystem,
		extractors: []extractors.ContentExtractor{
			extractors.NewDotEnvExtractor(),
			extractors.NewDockerfileExtractor(),
			extractors.NewLibraryCallExtractor(),
		},
	}
}

// Extract runs every extractor that can handle filename
func (e *Extractor) Extract(ctx context.Context, filename string, content []byte) []types.EnvResult {
	var results []types.EnvResult
	for _, extractor := range e.extractors {
		if !extractor.CanHandle(filename) {
			continue
		}
		found, err := extractor.Extract(ctx, filename, content)
		if err != nil {
			// unparsable files contribute nothing
			continue
		}
		results = append(results, found...)
	}
	return results
}

// Scan walks root and merges the results for each variable. The default of a
// variable comes from its highest-confidence source that has one.
func (e *Extractor) Scan(ctx context.Context, root string) ([]types.EnvVar, error) {
	var results []types.EnvResult

	err := e.filesystem.Walk(root, func(p string, info filesystems.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			if p != root && skipDirs[info.Name()] {
				return filesystems.SkipDir
			}
			return nil
		}
		if info.Size() > maxScanSize {
			return nil
		}

		rel, err := e.filesystem.Rel(root, p)
		if err != nil {
			return err
		}
		handled := false
		for _, extractor := range e.extractors {
			handled = handled || extractor.CanHandle(rel)
		}
		if !handled {
			return nil
		}

		content, err := e.filesystem.ReadFile(p)
		if err != nil {
			return err
		}
		results = append(results, e.Extract(ctx, rel, content)...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s for environment variables: %w", root, err)
	}

	return mergeResults(results), nil
}

func mergeResults(results []types.EnvResult) []types.EnvVar {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})

	byName := make(map[string]*types.EnvVar)
	var names []string
	for _, r := range results {
		v, ok := byName[r.VarName]
		if !ok {
			v = &types.EnvVar{Name: r.VarName, Type: r.Type}
			byName[r.VarName] = v
			names = append(names, r.VarName)
		}
		if v.Default == "" && r.Value != "" {
			v.Default = r.Value
			if v.Type == types.EnvTypeConfig || v.Type == types.EnvTypeUnknown {
				v.Type = r.Type
			}
		}
		v.Sensitive = v.Sensitive || r.Sensitive
		v.Sources = append(v.Sources, r.Source)
	}

	sort.Strings(names)
	vars := make([]types.EnvVar, 0, len(names))
	for _, name := range names {
		v := byName[name]
		if v.Sensitive {
			// defaults of secrets are not carried into plans or logs
			v.Default = ""
		}
		vars = append(vars, *v)
	}
	return vars
}

// PortDefault returns the numeric default the source gives the port variable named portEnv
func PortDefault(vars []types.EnvVar, portEnv string) (int, bool) {
	for _, v := range vars {
		if v.Name != portEnv || v.Default == "" {
			continue
		}
		port, err := strconv.Atoi(v.Default)
		if err != nil || port < 1 || port > 65535 {
			return 0, false
		}
		return port, true
	}
	return 0, false
}
