package signals

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/railwayapp/stevedore/internal/detect/types"
	"github.com/railwayapp/stevedore/internal/filesystems"
)

type ProcfileSignal struct {
	filesystem filesystems.FileSystem
	configPath string
}

func NewProcfileSignal(filesystem filesystems.FileSystem) *ProcfileSignal {
	return &ProcfileSignal{filesystem: filesystem}
}

func (h *ProcfileSignal) Confidence() int {
	return 90 // the project states its own web command
}

func (h *ProcfileSignal) Reset() {
	h.configPath = ""
}

func (h *ProcfileSignal) ObserveEntry(ctx context.Context, rootPath string, entry filesystems.DirEntry) error {
	if !entry.IsDir() && strings.EqualFold(entry.Name(), "Procfile") {
		h.configPath = h.filesystem.Join(rootPath, entry.Name())
	}
	return nil
}

func (h *ProcfileSignal) Finding(ctx context.Context) (*types.Finding, error) {
	if h.configPath == "" {
		return nil, nil
	}

	processes, err := h.parseProcfile(h.configPath)
	if err != nil {
		return nil, err
	}

	web, ok := processes["web"]
	if !ok {
		return nil, nil
	}

	args, err := shellwords.Parse(web)
	if err != nil {
		return nil, fmt.Errorf("failed to parse web process in %s: %w", h.configPath, err)
	}
	if len(args) == 0 {
		return nil, nil
	}

	return &types.Finding{
		Command: normalizePortRefs(args),
		Configs: []types.ConfigRef{{Type: "procfile", Path: h.configPath}},
	}, nil
}

func (h *ProcfileSignal) parseProcfile(configPath string) (map[string]string, error) {
	content, err := h.filesystem.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	processes := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(string(content)))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		processType, command, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		processes[strings.TrimSpace(processType)] = strings.TrimSpace(command)
	}

	return processes, scanner.Err()
}

var portRefPattern = regexp.MustCompile(`\$\{PORT(?::?-[^}]*)?\}|\$PORT\b`)

// normalizePortRefs rewrites $PORT and ${PORT:-n} into the ${PORT} placeholder
func normalizePortRefs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = portRefPattern.ReplaceAllLiteralString(arg, "${PORT}")
	}
	return out
}
