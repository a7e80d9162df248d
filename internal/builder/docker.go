// Package builder builds images through the Docker Engine API.
package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/distribution/reference"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/railwayapp/stevedore/internal/filesystems"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultDockerfileName is where a rendered Dockerfile is placed in the build context
const DefaultDockerfileName = "Dockerfile.stevedore"

// APIClient is the subset of the Docker client the builder uses
type APIClient interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (image.InspectResponse, []byte, error)
	ImageRemove(ctx context.Context, imageID string, options image.RemoveOptions) ([]image.DeleteResponse, error)
	Close() error
}

// Request describes one image build
type Request struct {
	Tag string
	// Dockerfile is sent in place of the file at DockerfileName when set
	Dockerfile     []byte
	DockerfileName string
	// InstallCommands mark failures of these RUN steps as dependency install failures
	InstallCommands []string
	NoCache         bool
	Pull            bool
	// Progress receives the daemon's build output
	Progress io.Writer
}

// Image is a successfully built image
type Image struct {
	ID  string
	Tag string
}

type DockerBuilder struct {
	api    APIClient
	logger *zap.Logger
}

// NewDockerBuilder connects to the daemon configured by the DOCKER_* environment.
// If host is non-empty it overrides DOCKER_HOST.
func NewDockerBuilder(host string, logger *zap.Logger) (*DockerBuilder, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, newBuildError("connect", "", "failed to create client", ErrConnectionFailed)
	}
	return NewWithClient(cli, logger), nil
}

// NewWithClient wraps an existing API client
func NewWithClient(api APIClient, logger *zap.Logger) *DockerBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DockerBuilder{api: api, logger: logger}
}

func (b *DockerBuilder) Ping(ctx context.Context) error {
	if _, err := b.api.Ping(ctx); err != nil {
		return newBuildError("ping", "", fmt.Sprintf("failed to ping docker: %v", err), ErrConnectionFailed)
	}
	return nil
}

func (b *DockerBuilder) Close() error {
	return b.api.Close()
}

// Build sends contextDir to the daemon and builds req.Tag from it.
// The first error reported by the daemon aborts the build; no image is
// returned for a failed build.
func (b *DockerBuilder) Build(ctx context.Context, filesystem filesystems.FileSystem, contextDir string, req Request) (*Image, error) {
	if _, err := reference.ParseNormalizedNamed(req.Tag); err != nil {
		return nil, newBuildError("build", req.Tag, fmt.Sprintf("invalid tag: %v", err), ErrInvalidContext)
	}
	dockerfileName := req.DockerfileName
	if dockerfileName == "" {
		dockerfileName = DefaultDockerfileName
	}

	ignore, err := LoadIgnore(filesystem, contextDir)
	if err != nil {
		return nil, newBuildError("build", req.Tag, err.Error(), ErrInvalidContext)
	}

	progress := req.Progress
	if progress == nil {
		progress = io.Discard
	}

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	var contextErr error
	g.Go(func() error {
		err := WriteContext(pw, filesystem, contextDir, ContextOptions{
			Ignore:         ignore,
			Dockerfile:     req.Dockerfile,
			DockerfileName: dockerfileName,
		})
		pw.CloseWithError(err)
		if err != nil && !errors.Is(err, io.ErrClosedPipe) {
			contextErr = newBuildError("build", req.Tag, err.Error(), ErrInvalidContext)
			return contextErr
		}
		return nil
	})

	var imageID string
	g.Go(func() error {
		defer pr.Close()

		resp, err := b.api.ImageBuild(gctx, pr, build.ImageBuildOptions{
			Tags:        []string{req.Tag},
			Dockerfile:  dockerfileName,
			NoCache:     req.NoCache,
			PullParent:  req.Pull,
			Remove:      true,
			ForceRemove: true,
		})
		if err != nil {
			if client.IsErrConnectionFailed(err) {
				return newBuildError("build", req.Tag, err.Error(), ErrConnectionFailed)
			}
			return newBuildError("build", req.Tag, err.Error(), ErrBuildFailed)
		}
		defer resp.Body.Close()

		err = jsonmessage.DisplayJSONMessagesStream(resp.Body, progress, 0, false, func(msg jsonmessage.JSONMessage) {
			if id := auxImageID(msg); id != "" {
				imageID = id
			}
		})
		if err != nil {
			var jerr *jsonmessage.JSONError
			if errors.As(err, &jerr) {
				return b.stepFailure(req, jerr.Message)
			}
			return newBuildError("build", req.Tag, err.Error(), ErrBuildFailed)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		if contextErr != nil {
			err = contextErr
		}
		b.logger.Error("build failed", zap.String("tag", req.Tag), zap.Error(err))
		if exists, _ := b.Exists(context.WithoutCancel(ctx), req.Tag); exists {
			b.logger.Warn("tag still points at an earlier image", zap.String("tag", req.Tag))
		}
		return nil, err
	}

	b.logger.Info("image built", zap.String("tag", req.Tag), zap.String("id", imageID))
	return &Image{ID: imageID, Tag: req.Tag}, nil
}

func (b *DockerBuilder) stepFailure(req Request, message string) error {
	for _, cmd := range req.InstallCommands {
		if cmd != "" && strings.Contains(message, cmd) {
			return newBuildError("install", req.Tag, message, ErrDependencyInstall)
		}
	}
	return newBuildError("build", req.Tag, message, ErrBuildFailed)
}

func auxImageID(msg jsonmessage.JSONMessage) string {
	if msg.Aux == nil {
		return ""
	}
	var aux struct {
		ID string `json:"ID"`
	}
	if err := json.Unmarshal(*msg.Aux, &aux); err != nil {
		return ""
	}
	return aux.ID
}

// Exists checks whether tag names a local image
func (b *DockerBuilder) Exists(ctx context.Context, tag string) (bool, error) {
	_, _, err := b.api.ImageInspectWithRaw(ctx, tag)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, newBuildError("inspect", tag, err.Error(), err)
	}
	return true, nil
}

// Remove deletes the image tagged tag
func (b *DockerBuilder) Remove(ctx context.Context, tag string) error {
	_, err := b.api.ImageRemove(ctx, tag, image.RemoveOptions{PruneChildren: true})
	if err != nil {
		if client.IsErrNotFound(err) {
			return newBuildError("remove", tag, "image not found", ErrImageNotFound)
		}
		return newBuildError("remove", tag, err.Error(), err)
	}
	return nil
}
