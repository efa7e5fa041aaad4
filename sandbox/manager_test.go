package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeBackend provides lifecycle only, no optional capabilities
type fakeBackend struct {
	kind      Kind
	createErr error
	destroyed []string
}

func (f *fakeBackend) Kind() Kind { return f.kind }

func (f *fakeBackend) Create(_ context.Context, sessionID, _ string) (Handle, error) {
	if f.createErr != nil {
		return Handle{}, f.createErr
	}
	return Handle{SandboxID: "sb-" + sessionID, Kind: f.kind}, nil
}

func (f *fakeBackend) Destroy(_ context.Context, sandboxID string) bool {
	f.destroyed = append(f.destroyed, sandboxID)
	return true
}

// fakeFullBackend adds code execution on top of fakeBackend
type fakeFullBackend struct {
	fakeBackend
	lastCode string
}

func (f *fakeFullBackend) Execute(_ context.Context, _, code, _ string) (ExecResult, error) {
	f.lastCode = code
	return ExecResult{Success: true, Stdout: "ran"}, nil
}

func TestStartSandboxRecordsBinding(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), &fakeBackend{kind: KindDocker})

	binding, err := m.StartSandbox(context.Background(), "sess", "python:3.11-slim", KindDocker)
	require.NoError(t, err)
	assert.Equal(t, KindDocker, binding.Kind)
	assert.Equal(t, "sb-sess", binding.Handle.SandboxID)

	got, ok := m.GetBinding("sess")
	require.True(t, ok)
	assert.Equal(t, binding, got)
}

func TestStartSandboxUnknownKind(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), &fakeBackend{kind: KindDocker})

	_, err := m.StartSandbox(context.Background(), "sess", "", Kind("firecracker"))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestStartSandboxRejectsDoubleBinding(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), &fakeBackend{kind: KindDocker}, &fakeBackend{kind: KindRemote})

	_, err := m.StartSandbox(context.Background(), "sess", "", KindDocker)
	require.NoError(t, err)

	_, err = m.StartSandbox(context.Background(), "sess", "", KindRemote)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestStartSandboxPropagatesProvisionError(t *testing.T) {
	backend := &fakeBackend{
		kind:      KindDocker,
		createErr: &ProvisionError{Kind: KindDocker, Err: errors.New("daemon unreachable")},
	}
	m := NewManager(zaptest.NewLogger(t), backend)

	_, err := m.StartSandbox(context.Background(), "sess", "", KindDocker)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	_, ok := m.GetBinding("sess")
	assert.False(t, ok)
}

func TestStopSandboxReleasesBinding(t *testing.T) {
	backend := &fakeBackend{kind: KindDocker}
	m := NewManager(zaptest.NewLogger(t), backend)

	_, err := m.StartSandbox(context.Background(), "sess", "", KindDocker)
	require.NoError(t, err)

	assert.True(t, m.StopSandbox(context.Background(), "sess"))
	assert.Equal(t, []string{"sb-sess"}, backend.destroyed)

	_, ok := m.GetBinding("sess")
	assert.False(t, ok)
}

func TestStopSandboxWithoutBinding(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), &fakeBackend{kind: KindDocker})
	assert.False(t, m.StopSandbox(context.Background(), "nobody"))
}

func TestStopSandboxDestroysRecordedHandle(t *testing.T) {
	// The binding, not the caller, knows the sandbox id. Stopping must
	// destroy the recorded handle even when every external record of the
	// id has been lost.
	backend := &fakeBackend{kind: KindRemote}
	m := NewManager(zaptest.NewLogger(t), backend)

	binding, err := m.StartSandbox(context.Background(), "sess", "", KindRemote)
	require.NoError(t, err)

	assert.True(t, m.StopSandbox(context.Background(), "sess"))
	assert.Equal(t, []string{binding.Handle.SandboxID}, backend.destroyed)
}

func TestExecuteRoutesToBoundBackend(t *testing.T) {
	backend := &fakeFullBackend{fakeBackend: fakeBackend{kind: KindRemote}}
	m := NewManager(zaptest.NewLogger(t), backend)

	_, err := m.StartSandbox(context.Background(), "sess", "", KindRemote)
	require.NoError(t, err)

	result, err := m.Execute(context.Background(), "sess", "print(1)", "python")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "ran", result.Stdout)
	assert.Equal(t, "print(1)", backend.lastCode)
}

func TestExecuteWithoutBinding(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), &fakeBackend{kind: KindDocker})

	_, err := m.Execute(context.Background(), "nobody", "print(1)", "python")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "session", nf.Resource)
}

func TestCapabilityGapsAreUnsupported(t *testing.T) {
	// fakeBackend implements lifecycle only, so every optional capability
	// must be rejected with the operation name.
	m := NewManager(zaptest.NewLogger(t), &fakeBackend{kind: KindDocker})

	_, err := m.StartSandbox(context.Background(), "sess", "", KindDocker)
	require.NoError(t, err)

	ctx := context.Background()

	_, err = m.Execute(ctx, "sess", "print(1)", "python")
	var unsupported *UnsupportedOperationError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "execute", unsupported.Op)
	assert.Equal(t, KindDocker, unsupported.Kind)

	_, err = m.ReadFile(ctx, "sess", "/tmp/a")
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "read_file", unsupported.Op)

	err = m.WriteFile(ctx, "sess", "/tmp/a", []byte("x"))
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "write_file", unsupported.Op)

	_, err = m.ListFiles(ctx, "sess", "/tmp")
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "list_files", unsupported.Op)

	_, err = m.SandboxURL(ctx, "sess")
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "get_url", unsupported.Op)
}

func TestIsRetryableClassification(t *testing.T) {
	assert.True(t, IsRetryable(&ProvisionError{Kind: KindRemote, Err: errors.New("503")}))
	assert.False(t, IsRetryable(&ValidationError{Msg: "bad input"}))
	assert.False(t, IsRetryable(&NotFoundError{Resource: "session", ID: "x"}))
	assert.False(t, IsRetryable(&UnsupportedOperationError{Op: "execute", Kind: KindDocker}))
	assert.False(t, IsRetryable(errors.New("plain")))
}
