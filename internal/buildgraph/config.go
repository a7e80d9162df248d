package buildgraph

import (
	"encoding/json"
	"fmt"
	"strings"

	ocispecs "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/railwayapp/stevedore/internal/schema"
)

// DefaultPathEnv is set when the plan does not set PATH itself. Raw LLB
// carries no base image config, so PATH would otherwise be empty.
const DefaultPathEnv = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// ImageConfig returns the OCI image config described by the metadata layers
// (WORKDIR, ENV, EXPOSE, ENTRYPOINT, CMD) that the LLB graph cannot carry.
// A zero platform means linux/amd64.
func ImageConfig(spec schema.ImageSpec, platform ocispecs.Platform) (ocispecs.Image, error) {
	if spec.BaseImage() == "" {
		return ocispecs.Image{}, fmt.Errorf("image has no base layer")
	}
	if platform.OS == "" {
		platform.OS = "linux"
	}
	if platform.Architecture == "" {
		platform.Architecture = "amd64"
	}

	img := ocispecs.Image{
		Platform: platform,
		RootFS:   ocispecs.RootFS{Type: "layers"},
	}
	cfg := &img.Config
	workDir := "/"
	cmdSet := false

	for i, layer := range spec.Layers[1:] {
		switch layer.Instruction {
		case schema.InstructionWorkdir:
			workDir = resolve(workDir, layer.Args[0])
			cfg.WorkingDir = strings.TrimSuffix(workDir, "/")
			if cfg.WorkingDir == "" {
				cfg.WorkingDir = "/"
			}

		case schema.InstructionEnv:
			for _, pair := range layer.Args {
				cfg.Env = setEnv(cfg.Env, pair)
			}

		case schema.InstructionExpose:
			if cfg.ExposedPorts == nil {
				cfg.ExposedPorts = make(map[string]struct{})
			}
			for _, p := range layer.Args {
				if !strings.Contains(p, "/") {
					p += "/tcp"
				}
				cfg.ExposedPorts[p] = struct{}{}
			}

		case schema.InstructionEntrypoint:
			cfg.Entrypoint = commandLine(layer)
			// ENTRYPOINT drops a CMD inherited from before it, but not one set in this image
			if !cmdSet {
				cfg.Cmd = nil
			}

		case schema.InstructionCmd:
			cfg.Cmd = commandLine(layer)
			cmdSet = true

		case schema.InstructionFrom:
			return ocispecs.Image{}, fmt.Errorf("layer %d: multi-stage plans have no single image config", i+1)
		}
	}

	if !hasEnv(cfg.Env, "PATH") {
		cfg.Env = append([]string{DefaultPathEnv}, cfg.Env...)
	}
	return img, nil
}

// MarshalImageConfig encodes the config in the form the image exporter's
// containerimage.config attribute expects
func MarshalImageConfig(img ocispecs.Image) ([]byte, error) {
	return json.Marshal(img)
}

func commandLine(layer schema.Layer) []string {
	if layer.Exec {
		return append([]string(nil), layer.Args...)
	}
	return []string{"/bin/sh", "-c", strings.Join(layer.Args, " ")}
}

func setEnv(env []string, pair string) []string {
	key, _, _ := strings.Cut(pair, "=")
	for i, existing := range env {
		if k, _, _ := strings.Cut(existing, "="); k == key {
			env[i] = pair
			return env
		}
	}
	return append(env, pair)
}

func hasEnv(env []string, key string) bool {
	for _, pair := range env {
		if k, _, _ := strings.Cut(pair, "="); k == key {
			return true
		}
	}
	return false
}
