package extractors

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/railwayapp/stevedore/internal/environment/types"
)

type LibraryCallExtractor struct{}

func NewLibraryCallExtractor() *LibraryCallExtractor {
	return &LibraryCallExtractor{}
}

var sourceExts = map[string]bool{
	".js": true, ".ts": true, ".jsx": true, ".tsx": true, ".mjs": true, ".cjs": true,
	".py": true, ".rb": true, ".go": true, ".sh": true,
}

func (l *LibraryCallExtractor) CanHandle(filename string) bool {
	return sourceExts[strings.ToLower(path.Ext(filename))] && !isTestFile(filename)
}

func (l *LibraryCallExtractor) Confidence() int {
	return 50 // usage patterns, not declarations
}

// Each pattern captures the variable name and, where the call has one, its default
var libraryCallPatterns = []*regexp.Regexp{
	// os.getenv("PORT", "8000"), os.environ.get("PORT", 8000)
	regexp.MustCompile(`os\.(?:getenv|environ\.get)\(\s*['"]([A-Z_][A-Z0-9_]*)['"]\s*(?:,\s*['"]?([^'")\s]*)['"]?)?\s*\)`),

	// os.environ["PORT"]
	regexp.MustCompile(`os\.environ\[['"]([A-Z_][A-Z0-9_]*)['"]\]()`),

	// process.env.PORT || 3000, process.env.PORT ?? "3000"
	regexp.MustCompile(`process\.env\.([A-Z_][A-Z0-9_]*)(?:\s*(?:\|\||\?\?)\s*['"]?([\w.:/-]+)['"]?)?`),

	// process.env["PORT"]
	regexp.MustCompile(`process\.env\[['"]([A-Z_][A-Z0-9_]*)['"]\]()`),

	// ENV.fetch("PORT", "3000"), ENV["PORT"]
	regexp.MustCompile(`ENV\.fetch\(\s*['"]([A-Z_][A-Z0-9_]*)['"]\s*(?:,\s*['"]?([^'")\s]*)['"]?)?\s*\)`),
	regexp.MustCompile(`ENV\[['"]([A-Z_][A-Z0-9_]*)['"]\]()`),

	// os.Getenv("PORT"), os.LookupEnv("PORT")
	regexp.MustCompile(`os\.(?:Getenv|LookupEnv)\("([A-Z_][A-Z0-9_]*)"\)()`),

	// `env:"PORT" envDefault:"8080"`
	regexp.MustCompile(`env:"([A-Z_][A-Z0-9_]*)"(?:[^` + "`" + `]*envDefault:"([^"]*)")?`),

	// Field(env="PORT")
	regexp.MustCompile(`Field\([^)]*env=['"]([A-Z_][A-Z0-9_]*)['"]()`),

	// ${PORT:-8000}, ${PORT}
	regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)(?::?-([^}]*))?\}`),
}

func (l *LibraryCallExtractor) Extract(ctx context.Context, filename string, content []byte) ([]types.EnvResult, error) {
	var results []types.EnvResult
	index := make(map[string]int) // name -> position in results

	for _, pattern := range libraryCallPatterns {
		for _, match := range pattern.FindAllSubmatch(content, -1) {
			name := string(match[1])
			value := ""
			if len(match) > 2 {
				value = string(match[2])
			}
			if types.ShouldIgnore(name) {
				continue
			}

			if i, ok := index[name]; ok {
				if results[i].Value == "" && value != "" {
					results[i] = newResult(name, value, results[i].Source, l.Confidence())
				}
				continue
			}
			index[name] = len(results)
			results = append(results, newResult(name, value, "usage:"+filename, l.Confidence()))
		}
	}

	return results, nil
}

func isTestFile(filename string) bool {
	name := strings.ToLower(path.Base(filename))
	dir := strings.ToLower(path.Dir(filename))
	return strings.HasPrefix(name, "test_") ||
		strings.Contains(name, "_test.") ||
		strings.Contains(name, ".test.") ||
		strings.Contains(name, ".spec.") ||
		strings.HasPrefix(dir, "test") || strings.Contains(dir, "/test") ||
		strings.Contains(dir, "__tests__")
}
