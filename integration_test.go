package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/agentbox/agent"
	"github.com/isdmx/agentbox/config"
	"github.com/isdmx/agentbox/conversation"
	"github.com/isdmx/agentbox/lifecycle"
	"github.com/isdmx/agentbox/logger"
	"github.com/isdmx/agentbox/memory"
	"github.com/isdmx/agentbox/provider"
	"github.com/isdmx/agentbox/sandbox"
	"github.com/isdmx/agentbox/tools"
)

// memoryBackend is an in-process sandbox backend with the full capability set
type memoryBackend struct {
	files map[string][]byte
}

func (*memoryBackend) Kind() sandbox.Kind { return sandbox.KindRemote }

func (*memoryBackend) Create(_ context.Context, sessionID, _ string) (sandbox.Handle, error) {
	return sandbox.Handle{SandboxID: "sb-" + sessionID, Kind: sandbox.KindRemote}, nil
}

func (*memoryBackend) Destroy(context.Context, string) bool { return true }

func (*memoryBackend) Execute(_ context.Context, _, code, _ string) (sandbox.ExecResult, error) {
	return sandbox.ExecResult{Success: true, Stdout: "executed: " + code}, nil
}

func (b *memoryBackend) ReadFile(_ context.Context, _, path string) ([]byte, error) {
	data, ok := b.files[path]
	if !ok {
		return nil, &sandbox.NotFoundError{Resource: "path", ID: path}
	}
	return data, nil
}

func (b *memoryBackend) WriteFile(_ context.Context, _, path string, content []byte) error {
	if b.files == nil {
		b.files = make(map[string][]byte)
	}
	b.files[path] = content
	return nil
}

func (b *memoryBackend) ListFiles(context.Context, string, string) ([]string, error) {
	names := make([]string, 0, len(b.files))
	for name := range b.files {
		names = append(names, name)
	}
	return names, nil
}

// toolCallingProvider requests one execute_code call, then answers
type toolCallingProvider struct {
	calls int
}

func (p *toolCallingProvider) ChatCompletion(context.Context, provider.Request) (*provider.Response, error) {
	p.calls++
	if p.calls == 1 {
		return &provider.Response{ToolCalls: []provider.ToolCall{
			{ID: "call-1", Name: "execute_code", Arguments: map[string]any{"code": "6*7"}},
		}}, nil
	}
	return &provider.Response{Content: "the result is 42"}, nil
}

func (*toolCallingProvider) StreamCompletion(context.Context, provider.Request) (<-chan string, error) {
	out := make(chan string)
	close(out)
	return out, nil
}

func TestIntegrationConfigAndLogger(t *testing.T) {
	cfg := &config.Config{
		Logging: config.LoggingConfig{
			Mode:  "development",
			Level: "debug",
		},
	}

	testLogger, err := logger.NewFromConfig(cfg)
	require.NoError(t, err)
	require.NotNil(t, testLogger)

	testLogger.Info("integration test started")
	_ = testLogger.Sync()
}

// TestIntegrationAgentTurn wires memory, conversation, sandbox, tools, and
// the agent together and runs a full tool-calling turn in process
func TestIntegrationAgentTurn(t *testing.T) {
	log := zaptest.NewLogger(t)

	backend := &memoryBackend{}
	manager := sandbox.NewManager(log, backend)

	state, err := lifecycle.NewStateManager(log, t.TempDir())
	require.NoError(t, err)
	orch := lifecycle.NewOrchestrator(log, manager, state, t.TempDir(),
		lifecycle.WithDefaultKind(sandbox.KindRemote))

	store, err := memory.New(log, t.TempDir())
	require.NoError(t, err)
	conv := conversation.NewManager(log, store)

	registry := tools.NewRegistry(log)
	tools.RegisterBuiltins(registry, manager)
	exec := tools.NewExecutor(log, registry)

	ag := agent.New(log, agent.Config{
		Name:          "integration",
		Model:         "gpt-4o-mini",
		ToolsEnabled:  true,
		MaxIterations: 5,
	}, &toolCallingProvider{}, conv, exec)

	info, err := orch.Start(context.Background(), "sess", "", "")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusRunning, info.Status)

	resp, err := ag.Run(context.Background(), "sess", "what is 6*7?")
	require.NoError(t, err)

	assert.Equal(t, "the result is 42", resp.Content)
	assert.Equal(t, 2, resp.Iterations)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "execute_code", resp.ToolCalls[0].Name)

	// Only the user message and the final reply are in history
	msgs := conv.GetMessages("sess")
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
	assert.Equal(t, conversation.RoleAssistant, msgs[1].Role)

	assert.True(t, orch.Stop(context.Background(), "sess"))
}
