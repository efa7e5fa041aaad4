package sandbox

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Binding records which backend a session is bound to and the sandbox handle
// that backend issued
type Binding struct {
	Kind   Kind   `json:"kind"`
	Handle Handle `json:"handle"`
}

// Manager routes sessions to sandbox backends. Each session is bound to
// exactly one backend kind when its sandbox is started, and every later
// operation is routed to that backend; operations outside the bound
// backend's capability set fail with *UnsupportedOperationError.
type Manager struct {
	logger   *zap.Logger
	backends map[Kind]Backend

	mu       sync.RWMutex
	bindings map[string]Binding // session id -> binding
}

// NewManager creates a Manager routing across the given backends
func NewManager(logger *zap.Logger, backends ...Backend) *Manager {
	byKind := make(map[Kind]Backend, len(backends))
	for _, b := range backends {
		byKind[b.Kind()] = b
	}

	return &Manager{
		logger:   logger,
		backends: byKind,
		bindings: make(map[string]Binding),
	}
}

// StartSandbox provisions a sandbox on the requested backend and records the
// session's binding
func (m *Manager) StartSandbox(ctx context.Context, sessionID, environment string, kind Kind) (Binding, error) {
	backend, ok := m.backends[kind]
	if !ok {
		return Binding{}, &ValidationError{Msg: fmt.Sprintf("unknown backend kind: %s", kind)}
	}

	m.mu.RLock()
	existing, bound := m.bindings[sessionID]
	m.mu.RUnlock()
	if bound {
		return Binding{}, &ValidationError{
			Msg: fmt.Sprintf("session %s is already bound to backend %s", sessionID, existing.Kind),
		}
	}

	handle, err := backend.Create(ctx, sessionID, environment)
	if err != nil {
		return Binding{}, err
	}

	binding := Binding{Kind: kind, Handle: handle}

	m.mu.Lock()
	m.bindings[sessionID] = binding
	m.mu.Unlock()

	m.logger.Info("sandbox started",
		zap.String("session_id", sessionID),
		zap.String("backend", string(kind)),
		zap.String("sandbox_id", handle.SandboxID))

	return binding, nil
}

// StopSandbox destroys the session's sandbox via its bound backend and
// releases the binding. The binding's recorded handle is authoritative:
// callers never supply a sandbox id, so a stale or lost id cannot orphan a
// live sandbox. A session with no recorded binding returns false without
// error.
func (m *Manager) StopSandbox(ctx context.Context, sessionID string) bool {
	m.mu.Lock()
	binding, ok := m.bindings[sessionID]
	delete(m.bindings, sessionID)
	m.mu.Unlock()

	if !ok {
		return false
	}

	return m.backends[binding.Kind].Destroy(ctx, binding.Handle.SandboxID)
}

// GetBinding returns the session's recorded binding
func (m *Manager) GetBinding(sessionID string) (Binding, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	binding, ok := m.bindings[sessionID]
	return binding, ok
}

// Execute runs code in the session's sandbox
func (m *Manager) Execute(ctx context.Context, sessionID, code, language string) (ExecResult, error) {
	binding, backend, err := m.route(sessionID)
	if err != nil {
		return ExecResult{}, err
	}

	runner, ok := backend.(CodeRunner)
	if !ok {
		return ExecResult{}, &UnsupportedOperationError{Op: "execute", Kind: binding.Kind}
	}

	return runner.Execute(ctx, binding.Handle.SandboxID, code, language)
}

// ReadFile reads a file from the session's sandbox filesystem
func (m *Manager) ReadFile(ctx context.Context, sessionID, path string) ([]byte, error) {
	binding, backend, err := m.route(sessionID)
	if err != nil {
		return nil, err
	}

	fa, ok := backend.(FileAccessor)
	if !ok {
		return nil, &UnsupportedOperationError{Op: "read_file", Kind: binding.Kind}
	}

	return fa.ReadFile(ctx, binding.Handle.SandboxID, path)
}

// WriteFile writes a file into the session's sandbox filesystem
func (m *Manager) WriteFile(ctx context.Context, sessionID, path string, content []byte) error {
	binding, backend, err := m.route(sessionID)
	if err != nil {
		return err
	}

	fa, ok := backend.(FileAccessor)
	if !ok {
		return &UnsupportedOperationError{Op: "write_file", Kind: binding.Kind}
	}

	return fa.WriteFile(ctx, binding.Handle.SandboxID, path, content)
}

// ListFiles lists a directory in the session's sandbox filesystem
func (m *Manager) ListFiles(ctx context.Context, sessionID, directory string) ([]string, error) {
	binding, backend, err := m.route(sessionID)
	if err != nil {
		return nil, err
	}

	fa, ok := backend.(FileAccessor)
	if !ok {
		return nil, &UnsupportedOperationError{Op: "list_files", Kind: binding.Kind}
	}

	return fa.ListFiles(ctx, binding.Handle.SandboxID, directory)
}

// SandboxURL returns the session sandbox's reachable URL
func (m *Manager) SandboxURL(ctx context.Context, sessionID string) (string, error) {
	binding, backend, err := m.route(sessionID)
	if err != nil {
		return "", err
	}

	up, ok := backend.(URLProvider)
	if !ok {
		return "", &UnsupportedOperationError{Op: "get_url", Kind: binding.Kind}
	}

	return up.SandboxURL(ctx, binding.Handle.SandboxID)
}

func (m *Manager) route(sessionID string) (Binding, Backend, error) {
	m.mu.RLock()
	binding, ok := m.bindings[sessionID]
	m.mu.RUnlock()

	if !ok {
		return Binding{}, nil, &NotFoundError{Resource: "session", ID: sessionID}
	}

	return binding, m.backends[binding.Kind], nil
}
