// Package buildgraph turns an image plan into a BuildKit LLB definition that
// can be piped into `buildctl build --local context=.`.
package buildgraph

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/moby/buildkit/client/llb"
	"github.com/railwayapp/stevedore/internal/schema"
)

// ContextName is the local source name the definition expects
const ContextName = "context"

type Options struct {
	// Exclude patterns in .dockerignore syntax
	Exclude []string
	// Platform defaults to llb.LinuxAmd64
	Platform llb.ConstraintsOpt
}

// State builds the filesystem graph of spec. Metadata layers (EXPOSE, CMD,
// ENTRYPOINT) do not touch the filesystem and are not part of the graph.
// Manifests are read through their own local source, so the install vertex
// depends only on the manifest files.
func State(spec schema.ImageSpec, opts Options) (llb.State, error) {
	base := spec.BaseImage()
	if base == "" {
		return llb.State{}, fmt.Errorf("image has no base layer")
	}

	st := llb.Image(base)
	workDir := "/"

	for i, layer := range spec.Layers[1:] {
		switch layer.Instruction {
		case schema.InstructionWorkdir:
			workDir = resolve(workDir, layer.Args[0])
			st = st.Dir(workDir).File(llb.Mkdir(workDir, 0755, llb.WithParents(true)))

		case schema.InstructionEnv:
			for _, pair := range layer.Args {
				key, value, _ := strings.Cut(pair, "=")
				st = st.AddEnv(key, value)
			}

		case schema.InstructionCopy:
			src, err := copySource(layer, opts)
			if err != nil {
				return llb.State{}, fmt.Errorf("layer %d: %w", i+1, err)
			}
			dest := resolve(workDir, layer.Dest())
			for _, s := range layer.Sources() {
				st = st.File(llb.Copy(src, s, dest, &llb.CopyInfo{
					CopyDirContentsOnly: true,
					CreateDestPath:      true,
					AllowWildcard:       true,
					AllowEmptyWildcard:  layer.Role == schema.RoleManifest,
				}), llb.WithCustomName(fmt.Sprintf("[%s] COPY %s", layer.Role, strings.Join(layer.Args, " "))))
			}

		case schema.InstructionRun:
			cmd := layer.Args
			if !layer.Exec {
				cmd = []string{"/bin/sh", "-c", strings.Join(layer.Args, " ")}
			}
			st = st.Run(
				llb.Args(cmd),
				llb.Dir(workDir),
				llb.WithCustomName(fmt.Sprintf("[%s] RUN %s", layer.Role, strings.Join(layer.Args, " "))),
			).Root()
		}
	}

	return st, nil
}

func copySource(layer schema.Layer, opts Options) (llb.State, error) {
	if layer.From != "" {
		return llb.Image(layer.From), nil
	}

	localOpts := []llb.LocalOption{
		llb.SharedKeyHint(ContextName),
		llb.WithCustomName(fmt.Sprintf("load %s", strings.Join(layer.Sources(), " "))),
	}
	if layer.Role == schema.RoleManifest {
		// only the manifests are transferred, so their digest alone keys the install step
		localOpts = append(localOpts, llb.IncludePatterns(layer.Sources()))
	} else if len(opts.Exclude) > 0 {
		localOpts = append(localOpts, llb.ExcludePatterns(opts.Exclude))
	}

	return llb.Local(ContextName, localOpts...), nil
}

func resolve(workDir, p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	resolved := path.Join(workDir, p)
	if strings.HasSuffix(p, "/") || p == "." {
		resolved += "/"
	}
	return resolved
}

// Definition marshals the plan's image graph
func Definition(ctx context.Context, spec schema.ImageSpec, opts Options) (*llb.Definition, error) {
	st, err := State(spec, opts)
	if err != nil {
		return nil, err
	}

	platform := opts.Platform
	if platform == nil {
		platform = llb.LinuxAmd64
	}
	def, err := st.Marshal(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal build graph: %w", err)
	}
	return def, nil
}

// WriteTo serialises a definition in the format buildctl reads from stdin
func WriteTo(def *llb.Definition, w io.Writer) error {
	return llb.WriteTo(def, w)
}
