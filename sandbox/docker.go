package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
)

// containerAPI is the slice of the Docker client used by the backend. It
// exists so tests can substitute a fake engine.
type containerAPI interface {
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerConfig holds settings for the local-container backend
type DockerConfig struct {
	Host           string
	DefaultImage   string
	WorkspaceDir   string
	MemoryMB       int
	CPUMillicores  int
	NetworkEnabled bool
}

// DockerBackend provisions sandboxes as local Docker containers with a
// bind-mounted per-session workspace. It provides lifecycle only; code
// execution and file access are not part of its capability set.
type DockerBackend struct {
	logger *zap.Logger
	config DockerConfig
	api    containerAPI
	fs     FileSystem
}

// DockerOption defines a functional option for DockerBackend
type DockerOption func(*DockerBackend)

// WithContainerAPI sets the Docker engine client for DockerBackend
func WithContainerAPI(api containerAPI) DockerOption {
	return func(b *DockerBackend) {
		b.api = api
	}
}

// WithDockerFileSystem sets the FileSystem for DockerBackend
func WithDockerFileSystem(fs FileSystem) DockerOption {
	return func(b *DockerBackend) {
		b.fs = fs
	}
}

// NewDockerBackend creates a DockerBackend. Without an explicit container
// API a real Docker client is built from the environment and the configured
// host.
func NewDockerBackend(logger *zap.Logger, config DockerConfig, opts ...DockerOption) (*DockerBackend, error) {
	b := &DockerBackend{
		logger: logger,
		config: config,
		fs:     &RealFileSystem{},
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.api == nil {
		clientOpts := []client.Opt{
			client.FromEnv,
			client.WithAPIVersionNegotiation(),
		}
		if config.Host != "" {
			clientOpts = append(clientOpts, client.WithHost(config.Host))
		}

		cli, err := client.NewClientWithOpts(clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create docker client: %w", err)
		}
		b.api = cli
	}

	return b, nil
}

// Kind identifies the backend
func (*DockerBackend) Kind() Kind { return KindDocker }

// Create starts a container from the given image with a bind-mounted
// workspace for the session
func (b *DockerBackend) Create(ctx context.Context, sessionID, environment string) (Handle, error) {
	if environment == "" {
		environment = b.config.DefaultImage
	}

	workspace, err := filepath.Abs(filepath.Join(b.config.WorkspaceDir, sessionID))
	if err != nil {
		return Handle{}, &ProvisionError{Kind: KindDocker, Err: err}
	}
	if err := b.fs.MkdirAll(workspace, 0o755); err != nil {
		return Handle{}, &ProvisionError{Kind: KindDocker, Err: fmt.Errorf("create workspace: %w", err)}
	}

	b.ensureImage(ctx, environment)

	containerConfig := &container.Config{
		Image:      environment,
		WorkingDir: "/sandbox",
		Cmd:        []string{"sleep", "infinity"},
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: workspace,
				Target: "/sandbox",
			},
		},
		NetworkMode: "none",
	}
	if b.config.NetworkEnabled {
		hostConfig.NetworkMode = "bridge"
	}
	if b.config.MemoryMB > 0 {
		hostConfig.Resources.Memory = int64(b.config.MemoryMB) * 1024 * 1024
	}
	if b.config.CPUMillicores > 0 {
		hostConfig.Resources.NanoCPUs = int64(b.config.CPUMillicores) * 1e6
	}

	name := "sandbox_" + sessionID
	resp, err := b.api.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		b.removeWorkspace(workspace)
		return Handle{}, &ProvisionError{Kind: KindDocker, Err: fmt.Errorf("create container: %w", err)}
	}

	if err := b.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if rmErr := b.api.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); rmErr != nil {
			b.logger.Warn("failed to remove container after start failure",
				zap.String("container_id", resp.ID),
				zap.Error(rmErr))
		}
		b.removeWorkspace(workspace)
		return Handle{}, &ProvisionError{Kind: KindDocker, Err: fmt.Errorf("start container: %w", err)}
	}

	b.logger.Info("sandbox container started",
		zap.String("session_id", sessionID),
		zap.String("container_id", resp.ID),
		zap.String("image", environment))

	return Handle{SandboxID: resp.ID, Kind: KindDocker}, nil
}

// Destroy stops and removes the container. Unknown or already-removed
// containers return false without error.
func (b *DockerBackend) Destroy(ctx context.Context, sandboxID string) bool {
	if err := b.api.ContainerStop(ctx, sandboxID, container.StopOptions{}); err != nil {
		b.logger.Debug("container stop failed",
			zap.String("container_id", sandboxID),
			zap.Error(err))
	}

	if err := b.api.ContainerRemove(ctx, sandboxID, container.RemoveOptions{Force: true}); err != nil {
		b.logger.Warn("error stopping sandbox container",
			zap.String("container_id", sandboxID),
			zap.Error(err))
		return false
	}

	b.logger.Info("sandbox container removed", zap.String("container_id", sandboxID))
	return true
}

// ensureImage pulls the image ahead of container creation. A failed pull is
// not fatal: the image may already exist locally, and creation will fail
// with the real cause otherwise.
func (b *DockerBackend) ensureImage(ctx context.Context, ref string) {
	reader, err := b.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		b.logger.Debug("image pull failed, relying on local image",
			zap.String("image", ref),
			zap.Error(err))
		return
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		b.logger.Debug("image pull interrupted", zap.String("image", ref), zap.Error(err))
	}
}

func (b *DockerBackend) removeWorkspace(path string) {
	if err := b.fs.RemoveAll(path); err != nil && !os.IsNotExist(err) {
		b.logger.Warn("failed to remove sandbox workspace",
			zap.String("path", path),
			zap.Error(err))
	}
}
