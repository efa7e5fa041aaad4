package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/agentbox/retry"
	"github.com/isdmx/agentbox/sandbox"
)

// flakyBackend fails provisioning a set number of times before succeeding
type flakyBackend struct {
	kind        sandbox.Kind
	failures    int
	creates     int
	destroyOK   bool
	destroyed   []string
}

func (f *flakyBackend) Kind() sandbox.Kind { return f.kind }

func (f *flakyBackend) Create(_ context.Context, sessionID, _ string) (sandbox.Handle, error) {
	f.creates++
	if f.creates <= f.failures {
		return sandbox.Handle{}, &sandbox.ProvisionError{Kind: f.kind, Err: errors.New("platform busy")}
	}
	return sandbox.Handle{
		SandboxID: "sb-" + sessionID,
		Kind:      f.kind,
		URL:       "https://sb.example.com",
	}, nil
}

func (f *flakyBackend) Destroy(_ context.Context, sandboxID string) bool {
	f.destroyed = append(f.destroyed, sandboxID)
	return f.destroyOK
}

type orchFixture struct {
	orch        *Orchestrator
	backend     *flakyBackend
	sessionsDir string
}

func newOrchFixture(t *testing.T, backend *flakyBackend) *orchFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	manager := sandbox.NewManager(logger, backend)
	state, err := NewStateManager(logger, t.TempDir())
	require.NoError(t, err)

	sessionsDir := t.TempDir()
	orch := NewOrchestrator(logger, manager, state, sessionsDir,
		WithDefaultKind(backend.kind),
		WithRetryPolicy(retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
			Retryable:   sandbox.IsRetryable,
		}))

	return &orchFixture{orch: orch, backend: backend, sessionsDir: sessionsDir}
}

func TestStartAllocatesSession(t *testing.T) {
	f := newOrchFixture(t, &flakyBackend{kind: sandbox.KindRemote, destroyOK: true})

	info, err := f.orch.Start(context.Background(), "", "py-env", "")
	require.NoError(t, err)

	assert.NotEmpty(t, info.SessionID)
	assert.Equal(t, "sb-"+info.SessionID, info.SandboxID)
	assert.Equal(t, "remote", info.Kind)
	assert.Equal(t, "https://sb.example.com", info.URL)
	assert.Equal(t, "py-env", info.Environment)
	assert.Equal(t, StatusRunning, info.Status)
	assert.False(t, info.CreatedAt.IsZero())

	// Scratch directory exists
	_, err = os.Stat(filepath.Join(f.sessionsDir, info.SessionID))
	require.NoError(t, err)

	// State is persisted and readable
	loaded, err := f.orch.Status(info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, loaded.Status)
}

func TestStartKeepsCallerSessionID(t *testing.T) {
	f := newOrchFixture(t, &flakyBackend{kind: sandbox.KindDocker, destroyOK: true})

	info, err := f.orch.Start(context.Background(), "my-session", "", sandbox.KindDocker)
	require.NoError(t, err)
	assert.Equal(t, "my-session", info.SessionID)
}

func TestStartRetriesTransientProvisioning(t *testing.T) {
	backend := &flakyBackend{kind: sandbox.KindRemote, failures: 2, destroyOK: true}
	f := newOrchFixture(t, backend)

	info, err := f.orch.Start(context.Background(), "sess", "", "")
	require.NoError(t, err)
	assert.Equal(t, 3, backend.creates)
	assert.Equal(t, StatusRunning, info.Status)
}

func TestStartGivesUpAfterRetryBudget(t *testing.T) {
	backend := &flakyBackend{kind: sandbox.KindRemote, failures: 10}
	f := newOrchFixture(t, backend)

	_, err := f.orch.Start(context.Background(), "sess", "", "")
	require.Error(t, err)
	assert.Equal(t, 3, backend.creates)

	// The scratch directory is cleaned up on failure
	_, statErr := os.Stat(filepath.Join(f.sessionsDir, "sess"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestStartDoesNotRetryValidationErrors(t *testing.T) {
	f := newOrchFixture(t, &flakyBackend{kind: sandbox.KindRemote, destroyOK: true})

	// Unknown backend kind is rejected without consuming retry attempts
	_, err := f.orch.Start(context.Background(), "sess", "", sandbox.Kind("firecracker"))

	var ve *sandbox.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Zero(t, f.backend.creates)
}

func TestStopTearsEverythingDown(t *testing.T) {
	f := newOrchFixture(t, &flakyBackend{kind: sandbox.KindRemote, destroyOK: true})

	info, err := f.orch.Start(context.Background(), "sess", "", "")
	require.NoError(t, err)

	assert.True(t, f.orch.Stop(context.Background(), "sess"))
	assert.Equal(t, []string{info.SandboxID}, f.backend.destroyed)
	assert.Zero(t, f.orch.SuppressedStopFailures())

	_, err = os.Stat(filepath.Join(f.sessionsDir, "sess"))
	assert.True(t, os.IsNotExist(err))

	loaded, err := f.orch.Status("sess")
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, loaded.Status)
	require.NotNil(t, loaded.StoppedAt)
}

func TestStopDestroysSandboxWithoutStateRecord(t *testing.T) {
	backend := &flakyBackend{kind: sandbox.KindRemote, destroyOK: true}
	f := newOrchFixture(t, backend)

	info, err := f.orch.Start(context.Background(), "sess", "", "")
	require.NoError(t, err)

	// Simulate a lost state record: the live binding must still be enough
	// to tear the sandbox down.
	require.NoError(t, f.orch.state.Delete("sess"))

	assert.True(t, f.orch.Stop(context.Background(), "sess"))
	assert.Equal(t, []string{info.SandboxID}, f.backend.destroyed)
	assert.Zero(t, f.orch.SuppressedStopFailures())
}

func TestStopAbsorbsTeardownFailures(t *testing.T) {
	f := newOrchFixture(t, &flakyBackend{kind: sandbox.KindRemote, destroyOK: false})

	_, err := f.orch.Start(context.Background(), "sess", "", "")
	require.NoError(t, err)

	// Destroy reports failure, Stop still succeeds and counts it
	assert.True(t, f.orch.Stop(context.Background(), "sess"))
	assert.Equal(t, uint64(1), f.orch.SuppressedStopFailures())
}

func TestStopUnknownSessionStillSucceeds(t *testing.T) {
	f := newOrchFixture(t, &flakyBackend{kind: sandbox.KindRemote, destroyOK: true})

	assert.True(t, f.orch.Stop(context.Background(), "ghost"))
	assert.Equal(t, uint64(1), f.orch.SuppressedStopFailures())
}

func TestStatusUnknownSession(t *testing.T) {
	f := newOrchFixture(t, &flakyBackend{kind: sandbox.KindRemote, destroyOK: true})

	_, err := f.orch.Status("ghost")

	var nf *sandbox.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestListSessions(t *testing.T) {
	f := newOrchFixture(t, &flakyBackend{kind: sandbox.KindRemote, destroyOK: true})

	_, err := f.orch.Start(context.Background(), "a", "", "")
	require.NoError(t, err)
	_, err = f.orch.Start(context.Background(), "b", "", "")
	require.NoError(t, err)

	infos := f.orch.List()
	require.Len(t, infos, 2)

	ids := []string{infos[0].SessionID, infos[1].SessionID}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}
