package stevedore

import (
	"context"
	"fmt"
	"os"

	"github.com/railwayapp/stevedore/internal/builder"
	"github.com/railwayapp/stevedore/internal/config"
	"github.com/railwayapp/stevedore/internal/detect"
	"github.com/railwayapp/stevedore/internal/detect/types"
	"github.com/railwayapp/stevedore/internal/export"
	"github.com/railwayapp/stevedore/internal/filesystems"
	"github.com/railwayapp/stevedore/internal/plan"
	"github.com/railwayapp/stevedore/internal/schema"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var planCmd = &cobra.Command{
	Use:   "plan [source-path]",
	Short: "Print the image plan for a project as a Dockerfile, JSON, YAML or BuildKit LLB",
	Long: `Plan detects the project's runtime and lays out its image without building it.

The llb format writes a binary definition of the image filesystem that can be
piped into "buildctl build --local context=<source-path>". LLB carries no image
metadata, so with -o the entrypoint, command, exposed port, working directory
and env are also written as an OCI image config to <output>.config.json. Pass
it to the image exporter as its containerimage.config attribute. The oci-config
format prints that config on its own.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, planFlags)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		project, err := planProject(cmd.Context(), sourcePath(args), cfg)
		if err != nil {
			return err
		}
		defer project.Close()

		registry := export.DefaultRegistry(export.LLBOptions{Exclude: project.ignore.Patterns})
		exporter, err := registry.Get(format)
		if err != nil {
			return err
		}
		content, err := exporter.Export(cmd.Context(), project.plan)
		if err != nil {
			return fmt.Errorf("%s export failed: %w", exporter.Name(), err)
		}

		if output == "" || output == "-" {
			_, err = cmd.OutOrStdout().Write(content)
			return err
		}
		if err := os.WriteFile(output, content, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		logger.Info("wrote plan", zap.String("format", format), zap.String("path", output))

		if exporter.Name() != "llb" {
			return nil
		}
		imageConfig, err := export.NewImageConfigExporter().Export(cmd.Context(), project.plan)
		if err != nil {
			return fmt.Errorf("image config export failed: %w", err)
		}
		configPath := output + ".config.json"
		if err := os.WriteFile(configPath, imageConfig, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", configPath, err)
		}
		logger.Info("wrote image config", zap.String("path", configPath))
		return nil
	},
}

func init() {
	addPlanFlags(planCmd.Flags())
	planCmd.Flags().StringP("format", "f", "dockerfile", "output format: dockerfile, json, yaml, llb or oci-config")
	planCmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")
}

type project struct {
	source *filesystems.Source
	result *types.Result
	plan   *schema.Plan
	ignore *builder.Ignore
}

// Close removes the local copy of a remote source
func (p *project) Close() error {
	return p.source.Close()
}

// detectProject opens the source and detects its runtime. The caller closes the source.
func detectProject(ctx context.Context, location string) (*filesystems.Source, *types.Result, error) {
	source, err := filesystems.Open(ctx, location)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", location, err)
	}

	result, err := detect.NewDetector(source.FS).Detect(ctx, source.Root)
	if err != nil {
		source.Close()
		return nil, result, fmt.Errorf("detection failed for %s: %w", location, err)
	}
	if source.Name != "" {
		result.Name = source.Name
	}
	logger.Debug("detected project",
		zap.String("runtime", string(result.Runtime)),
		zap.String("base_image", result.BaseImage),
		zap.Strings("manifests", result.Manifests),
		zap.Strings("command", result.Command),
		zap.Int("port", result.Port),
	)
	return source, result, nil
}

func planProject(ctx context.Context, location string, cfg *config.Config) (*project, error) {
	source, result, err := detectProject(ctx, location)
	if err != nil {
		return nil, err
	}

	p, err := plan.New(result, cfg.PlanOptions())
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("failed to plan %s: %w", location, err)
	}
	for _, v := range schema.CheckImage(p.Image) {
		logger.Warn("plan check", zap.String("rule", v.Rule), zap.String("message", v.Message))
	}

	ignore, err := builder.LoadIgnore(source.FS, source.Root)
	if err != nil {
		source.Close()
		return nil, err
	}

	return &project{source: source, result: result, plan: p, ignore: ignore}, nil
}
