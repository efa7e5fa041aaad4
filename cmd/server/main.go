package main

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/agentbox/agent"
	"github.com/isdmx/agentbox/config"
	"github.com/isdmx/agentbox/conversation"
	"github.com/isdmx/agentbox/httpapi"
	"github.com/isdmx/agentbox/lifecycle"
	"github.com/isdmx/agentbox/logger"
	"github.com/isdmx/agentbox/mcpserver"
	"github.com/isdmx/agentbox/memory"
	"github.com/isdmx/agentbox/provider"
	"github.com/isdmx/agentbox/retry"
	"github.com/isdmx/agentbox/sandbox"
	"github.com/isdmx/agentbox/tools"
)

func newMemoryStore(cfg *config.Config, log *zap.Logger) (*memory.Store, error) {
	return memory.New(log, filepath.Join(cfg.Storage.Root, cfg.Storage.MemoryDir))
}

func newConversationManager(cfg *config.Config, log *zap.Logger, store *memory.Store) *conversation.Manager {
	return conversation.NewManager(log, store,
		conversation.WithMaxHistory(cfg.Conversation.MaxHistory),
		conversation.WithContextCharBudget(cfg.Conversation.ContextCharBudget),
	)
}

func newRetryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelaySec * float64(time.Second)),
		MaxDelay:    time.Duration(cfg.Retry.MaxDelaySec * float64(time.Second)),
	}
}

func newToolExecutor(cfg *config.Config, log *zap.Logger, sandboxes *sandbox.Manager) *tools.Executor {
	registry := tools.NewRegistry(log)
	tools.RegisterBuiltins(registry, sandboxes)
	registry.LoadDefinitions(cfg.Tools.RegistryPath)
	return tools.NewExecutor(log, registry)
}

func newProvider(cfg *config.Config, log *zap.Logger) provider.Provider {
	return provider.NewOpenAIProvider(log, cfg.Agent.APIKey, cfg.Agent.BaseURL)
}

func newAgent(cfg *config.Config, log *zap.Logger, prov provider.Provider, conv *conversation.Manager, exec *tools.Executor, policy retry.Policy) *agent.Agent {
	policy.Retryable = agent.IsTransient
	return agent.New(log, agent.Config{
		Name:          cfg.Agent.Name,
		Model:         cfg.Agent.Model,
		Temperature:   cfg.Agent.Temperature,
		MaxTokens:     cfg.Agent.MaxTokens,
		SystemPrompt:  cfg.Agent.SystemPrompt,
		ToolsEnabled:  cfg.Agent.ToolsEnabled,
		MaxIterations: cfg.Agent.MaxIterations,
		Timeout:       cfg.AgentTimeout(),
	}, prov, conv, exec, agent.WithRetryPolicy(policy))
}

func newStateManager(cfg *config.Config, log *zap.Logger) (*lifecycle.StateManager, error) {
	return lifecycle.NewStateManager(log, filepath.Join(cfg.Storage.Root, cfg.Storage.RuntimeDir))
}

func newOrchestrator(cfg *config.Config, log *zap.Logger, sandboxes *sandbox.Manager, state *lifecycle.StateManager, policy retry.Policy) *lifecycle.Orchestrator {
	policy.Retryable = sandbox.IsRetryable
	return lifecycle.NewOrchestrator(log, sandboxes, state,
		filepath.Join(cfg.Storage.Root, cfg.Storage.SessionsDir),
		lifecycle.WithDefaultKind(sandbox.Kind(cfg.Sandbox.DefaultBackend)),
		lifecycle.WithRetryPolicy(policy),
	)
}

func newHTTPServer(cfg *config.Config, log *zap.Logger, orch *lifecycle.Orchestrator, sandboxes *sandbox.Manager, ag *agent.Agent, conv *conversation.Manager) *httpapi.Server {
	return httpapi.NewServer(log, cfg.Server.HTTPPort, orch, sandboxes, ag, conv)
}

func main() {
	app := fx.New(
		fx.Provide(
			config.New,
			logger.NewFromConfig,

			newMemoryStore,
			newConversationManager,
			newRetryPolicy,

			sandbox.NewManagerFromConfig,
			newToolExecutor,

			newProvider,
			newAgent,

			newStateManager,
			newOrchestrator,

			newHTTPServer,
			mcpserver.New,
		),

		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, api *httpapi.Server, mcp *mcpserver.MCPServer) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					if err := api.Start(); err != nil {
						return err
					}

					switch cfg.Server.Transport {
					case "stdio":
						go func() {
							if err := mcp.ServeStdio(); err != nil {
								panic(err)
							}
						}()
					case "http":
						go func() {
							if err := mcp.ServeHTTP(); err != nil {
								panic(err)
							}
						}()
					default:
						panic("unsupported transport: " + cfg.Server.Transport)
					}

					return nil
				},
				OnStop: func(ctx context.Context) error {
					return api.Shutdown(ctx)
				},
			})
		}),

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	app.Run()
}
