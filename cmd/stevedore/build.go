package stevedore

import (
	"errors"
	"fmt"

	"github.com/railwayapp/stevedore/internal/builder"
	"github.com/railwayapp/stevedore/internal/dockerfile"
	"github.com/railwayapp/stevedore/internal/schema"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var buildCmd = &cobra.Command{
	Use:   "build [source-path]",
	Short: "Build an image for a project with the Docker engine",
	Long: `Build detects and plans the project, renders its Dockerfile into the build
context and builds it through the Docker Engine API. The build stops at the
first failing step; when the dependency install fails no image is tagged.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := map[string]string{"docker-host": "docker_host"}
		for flag, key := range planFlags {
			keys[flag] = key
		}
		cfg, err := loadConfig(cmd, keys)
		if err != nil {
			return err
		}

		tag, _ := cmd.Flags().GetString("tag")
		noCache, _ := cmd.Flags().GetBool("no-cache")
		pull, _ := cmd.Flags().GetBool("pull")
		dockerfileName, _ := cmd.Flags().GetString("dockerfile")

		ctx := cmd.Context()
		source := sourcePath(args)
		project, err := planProject(ctx, source, cfg)
		if err != nil {
			return err
		}
		defer project.Close()

		content, err := dockerfile.Render(project.plan.Image)
		if err != nil {
			return err
		}

		keysByLayer, err := schema.CacheKeys(project.plan.Image, project.source.FS, project.source.Root, project.ignore.Excludes)
		if err != nil {
			return fmt.Errorf("build context does not satisfy the plan: %w", err)
		}
		for i, key := range keysByLayer {
			logger.Debug("layer cache key",
				zap.Int("layer", i),
				zap.String("role", string(project.plan.Image.Layers[i].Role)),
				zap.String("key", key.String()),
			)
		}

		var install []string
		for _, layer := range project.plan.Image.LayersWithRole(schema.RoleInstall) {
			install = append(install, layer.Args...)
		}

		b, err := builder.NewDockerBuilder(cfg.DockerHost, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		if err := b.Ping(ctx); err != nil {
			return err
		}

		image, err := b.Build(ctx, project.source.FS, project.source.Root, builder.Request{
			Tag:             tag,
			Dockerfile:      content,
			DockerfileName:  dockerfileName,
			InstallCommands: install,
			NoCache:         noCache,
			Pull:            pull,
			Progress:        cmd.ErrOrStderr(),
		})
		if err != nil {
			var buildErr *builder.BuildError
			if errors.As(err, &buildErr) && errors.Is(err, builder.ErrDependencyInstall) {
				logger.Error("dependency install failed", zap.String("tag", tag), zap.String("step", buildErr.Message))
			}
			return err
		}

		logger.Info("built image", zap.String("tag", image.Tag), zap.String("id", image.ID))
		fmt.Fprintln(cmd.OutOrStdout(), image.ID)
		return nil
	},
}

func init() {
	addPlanFlags(buildCmd.Flags())
	buildCmd.Flags().StringP("tag", "t", "", "name and tag of the image, e.g. registry/app:1.2.3")
	buildCmd.Flags().Bool("no-cache", false, "do not reuse cached layers")
	buildCmd.Flags().Bool("pull", false, "always pull a newer version of the base image")
	buildCmd.Flags().String("dockerfile", builder.DefaultDockerfileName, "name the rendered Dockerfile is given in the build context")
	buildCmd.Flags().String("docker-host", "", "Docker daemon address (default: $DOCKER_HOST)")
	_ = buildCmd.MarkFlagRequired("tag")
}
