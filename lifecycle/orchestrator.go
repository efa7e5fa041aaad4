package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/agentbox/retry"
	"github.com/isdmx/agentbox/sandbox"
)

// Orchestrator ties session identity, on-disk session state, and sandbox
// provisioning together. Starting a session allocates an id, a scratch
// directory, and a sandbox; stopping tears all of it down.
type Orchestrator struct {
	logger      *zap.Logger
	sandboxes   *sandbox.Manager
	state       *StateManager
	sessionsDir string
	defaultKind sandbox.Kind
	policy      retry.Policy

	suppressedStops atomic.Uint64
}

// Option defines a functional option for Orchestrator
type Option func(*Orchestrator)

// WithRetryPolicy overrides the retry policy applied to sandbox provisioning
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// WithDefaultKind sets the backend used when Start gets an empty kind
func WithDefaultKind(kind sandbox.Kind) Option {
	return func(o *Orchestrator) {
		o.defaultKind = kind
	}
}

// NewOrchestrator creates an orchestrator. sessionsDir holds per-session
// scratch directories and is created on demand.
func NewOrchestrator(logger *zap.Logger, sandboxes *sandbox.Manager, state *StateManager, sessionsDir string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:      logger,
		sandboxes:   sandboxes,
		state:       state,
		sessionsDir: sessionsDir,
		defaultKind: sandbox.KindDocker,
		policy:      retry.Policy{Retryable: sandbox.IsRetryable},
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Start provisions a session. An empty sessionID allocates a fresh identity;
// an empty kind falls back to the configured default backend. Provisioning
// failures classified as transient are retried before giving up.
func (o *Orchestrator) Start(ctx context.Context, sessionID, environment string, kind sandbox.Kind) (SessionInfo, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if kind == "" {
		kind = o.defaultKind
	}

	scratch := filepath.Join(o.sessionsDir, sessionID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return SessionInfo{}, fmt.Errorf("create session dir: %w", err)
	}

	binding, err := retry.DoValue(ctx, o.policy, func() (sandbox.Binding, error) {
		return o.sandboxes.StartSandbox(ctx, sessionID, environment, kind)
	})
	if err != nil {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			o.logger.Warn("failed to clean session dir after provisioning failure",
				zap.String("session_id", sessionID),
				zap.Error(rmErr))
		}
		return SessionInfo{}, err
	}

	info := SessionInfo{
		SessionID:   sessionID,
		SandboxID:   binding.Handle.SandboxID,
		Kind:        string(binding.Kind),
		URL:         binding.Handle.URL,
		Environment: environment,
		Status:      StatusRunning,
		CreatedAt:   time.Now().UTC(),
	}

	if err := o.state.Save(info); err != nil {
		o.logger.Warn("failed to persist session state",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	o.logger.Info("session started",
		zap.String("session_id", sessionID),
		zap.String("backend", info.Kind),
		zap.String("sandbox_id", info.SandboxID))

	return info, nil
}

// Stop tears a session down: sandbox, scratch directory, and state record.
// Teardown always reports success to the caller; individual failures are
// logged and counted rather than surfaced, so a half-dead session can always
// be released.
func (o *Orchestrator) Stop(ctx context.Context, sessionID string) bool {
	info, err := o.state.Load(sessionID)
	if err != nil {
		o.logger.Debug("stopping session with no persisted state",
			zap.String("session_id", sessionID))
	}

	if destroyed := o.sandboxes.StopSandbox(ctx, sessionID); !destroyed {
		o.suppressedStops.Add(1)
		o.logger.Warn("sandbox teardown incomplete",
			zap.String("session_id", sessionID),
			zap.String("sandbox_id", info.SandboxID))
	}

	scratch := filepath.Join(o.sessionsDir, sessionID)
	if err := os.RemoveAll(scratch); err != nil {
		o.suppressedStops.Add(1)
		o.logger.Warn("failed to remove session dir",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	now := time.Now().UTC()
	info.Status = StatusStopped
	info.StoppedAt = &now
	if info.SessionID != "" {
		if err := o.state.Save(info); err != nil {
			o.logger.Warn("failed to persist stopped session state",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}

	o.logger.Info("session stopped", zap.String("session_id", sessionID))
	return true
}

// Status returns the session's persisted record, refreshed against the live
// binding when one exists
func (o *Orchestrator) Status(sessionID string) (SessionInfo, error) {
	info, err := o.state.Load(sessionID)
	if err != nil {
		return SessionInfo{}, err
	}

	if _, bound := o.sandboxes.GetBinding(sessionID); !bound && info.Status == StatusRunning {
		info.Status = StatusStopped
	}

	return info, nil
}

// List returns all persisted session records
func (o *Orchestrator) List() []SessionInfo {
	return o.state.List()
}

// SuppressedStopFailures reports how many teardown failures Stop has absorbed
func (o *Orchestrator) SuppressedStopFailures() uint64 {
	return o.suppressedStops.Load()
}
