package sandbox

import (
	"go.uber.org/zap"

	"github.com/isdmx/agentbox/config"
)

// NewManagerFromConfig builds the unified manager with every configured
// backend registered
func NewManagerFromConfig(logger *zap.Logger, cfg *config.Config) (*Manager, error) {
	docker, err := NewDockerBackend(logger, DockerConfig{
		Host:           cfg.Sandbox.Docker.Host,
		DefaultImage:   cfg.Sandbox.Docker.DefaultImage,
		WorkspaceDir:   cfg.Sandbox.Docker.WorkspaceDir,
		MemoryMB:       cfg.Sandbox.Docker.MemoryMB,
		CPUMillicores:  cfg.Sandbox.Docker.CPUMillicores,
		NetworkEnabled: cfg.Sandbox.Docker.NetworkEnabled,
	})
	if err != nil {
		return nil, err
	}

	remote := NewRemoteBackend(logger, RemoteConfig{
		BaseURL:         cfg.Sandbox.Remote.BaseURL,
		APIKey:          cfg.Sandbox.Remote.APIKey,
		DefaultTemplate: cfg.Sandbox.Remote.DefaultTemplate,
		RequestTimeout:  cfg.RemoteRequestTimeout(),
	})

	return NewManager(logger, docker, remote), nil
}
