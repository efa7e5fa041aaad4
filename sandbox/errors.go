package sandbox

import (
	"errors"
	"fmt"
)

// ProvisionError reports that a backend could not create a sandbox. It is
// the only retryable error in the taxonomy.
type ProvisionError struct {
	Kind Kind
	Err  error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provisioning failed on backend %q: %v", e.Kind, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// ExecutionError reports an interpreter or runtime failure inside a sandbox.
// User-code errors never produce an ExecutionError; they surface in the
// execution result instead.
type ExecutionError struct {
	SandboxID string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed in sandbox %q: %v", e.SandboxID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NotFoundError reports an unknown session, sandbox handle, or path
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// UnsupportedOperationError reports an operation that the session's bound
// backend does not provide
type UnsupportedOperationError struct {
	Op   string
	Kind Kind
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("operation %q is not supported by backend %q", e.Op, e.Kind)
}

// ValidationError reports malformed input that no amount of retrying can fix
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// IsRetryable reports whether err is worth retrying. Only provisioning
// failures qualify; everything else in the taxonomy is deterministic.
func IsRetryable(err error) bool {
	var pe *ProvisionError
	return errors.As(err, &pe)
}
