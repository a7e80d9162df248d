package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/railwayapp/stevedore/internal/detect/types"
	"github.com/railwayapp/stevedore/internal/filesystems"
)

const defaultNodeImage = "node:22-slim"

var nodeMajorPattern = regexp.MustCompile(`(\d+)`)

type NodeSignal struct {
	filesystem filesystems.FileSystem
	rootPath   string
	files      map[string]bool
}

func NewNodeSignal(filesystem filesystems.FileSystem) *NodeSignal {
	return &NodeSignal{filesystem: filesystem}
}

func (n *NodeSignal) Confidence() int {
	return 75
}

func (n *NodeSignal) Reset() {
	n.rootPath = ""
	n.files = make(map[string]bool)
}

func (n *NodeSignal) ObserveEntry(ctx context.Context, rootPath string, entry filesystems.DirEntry) error {
	n.rootPath = rootPath
	if !entry.IsDir() {
		n.files[entry.Name()] = true
	}
	return nil
}

type packageJSON struct {
	Main    string            `json:"main"`
	Scripts map[string]string `json:"scripts"`
	Engines struct {
		Node string `json:"node"`
	} `json:"engines"`
}

func (n *NodeSignal) Finding(ctx context.Context) (*types.Finding, error) {
	if !n.files["package.json"] {
		return nil, nil
	}

	path := n.filesystem.Join(n.rootPath, "package.json")
	data, err := n.filesystem.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	finding := &types.Finding{
		Runtime:   types.RuntimeNode,
		BaseImage: defaultNodeImage,
		Manifests: []string{"package.json"},
		Configs:   []types.ConfigRef{{Type: "package", Path: path}},
	}

	if m := nodeMajorPattern.FindStringSubmatch(pkg.Engines.Node); m != nil {
		finding.BaseImage = "node:" + m[1] + "-slim"
	}

	_, hasBuild := pkg.Scripts["build"]
	omitDev := " --omit=dev"
	if hasBuild {
		omitDev = "" // build tooling usually lives in devDependencies
		finding.Build = "npm run build"
	}

	switch {
	case n.files["package-lock.json"]:
		finding.Manifests = append(finding.Manifests, "package-lock.json")
		finding.Install = "npm ci" + omitDev
	case n.files["yarn.lock"]:
		finding.Manifests = append(finding.Manifests, "yarn.lock")
		finding.Install = "yarn install --frozen-lockfile"
		if !hasBuild {
			finding.Install += " --production"
		}
	case n.files["pnpm-lock.yaml"]:
		finding.Manifests = append(finding.Manifests, "pnpm-lock.yaml")
		finding.Install = "corepack enable && pnpm install --frozen-lockfile"
		if !hasBuild {
			finding.Install += " --prod"
		}
	default:
		finding.Install = "npm install" + omitDev
	}

	finding.Command = n.startCommand(pkg)
	return finding, nil
}

// startCommand runs the start script's program directly instead of through npm,
// which would otherwise sit between the container and the service
func (n *NodeSignal) startCommand(pkg packageJSON) []string {
	if start := pkg.Scripts["start"]; start != "" {
		if strings.ContainsAny(start, "&|;") {
			return []string{"npm", "start"}
		}
		if args, err := shellwords.Parse(start); err == nil && len(args) > 0 && !strings.Contains(args[0], "=") {
			return args
		}
		return []string{"npm", "start"}
	}
	if pkg.Main != "" {
		return []string{"node", pkg.Main}
	}
	return []string{"node", "index.js"}
}
