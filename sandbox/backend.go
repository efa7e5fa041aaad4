package sandbox

import (
	"context"
)

// Kind identifies a sandbox backend implementation
type Kind string

// Supported backend kinds
const (
	KindDocker Kind = "docker"
	KindRemote Kind = "remote"
)

// Handle references a sandbox owned by a backend. The id is only meaningful
// to the backend that issued it.
type Handle struct {
	SandboxID string `json:"sandbox_id"`
	Kind      Kind   `json:"kind"`
	URL       string `json:"url,omitempty"`
}

// ExecResult is the structured outcome of running code in a sandbox.
// User-code failures set Success to false and populate Error; they are not
// Go errors.
type ExecResult struct {
	Success   bool       `json:"success"`
	Stdout    string     `json:"stdout"`
	Stderr    string     `json:"stderr"`
	Error     string     `json:"error,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Artifact is a binary output produced during execution, such as a rendered
// chart
type Artifact struct {
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Backend is the capability every sandbox backend provides: provisioning and
// teardown. Further capabilities are optional interfaces asserted at routing
// time.
type Backend interface {
	// Kind identifies the backend
	Kind() Kind

	// Create provisions a sandbox for the session from the environment
	// spec (a container image or a template id). Fails with
	// *ProvisionError when the platform rejects the spec.
	Create(ctx context.Context, sessionID, environment string) (Handle, error)

	// Destroy tears down the sandbox. It is idempotent: destroying an
	// unknown or already-destroyed sandbox returns false and never
	// errors.
	Destroy(ctx context.Context, sandboxID string) bool
}

// CodeRunner is implemented by backends that can execute code
type CodeRunner interface {
	Execute(ctx context.Context, sandboxID, code, language string) (ExecResult, error)
}

// FileAccessor is implemented by backends that expose the sandbox filesystem
type FileAccessor interface {
	ReadFile(ctx context.Context, sandboxID, path string) ([]byte, error)
	WriteFile(ctx context.Context, sandboxID, path string, content []byte) error
	// ListFiles returns the entries of a directory. A nonexistent
	// directory yields an empty slice, not an error.
	ListFiles(ctx context.Context, sandboxID, directory string) ([]string, error)
}

// URLProvider is implemented by backends whose sandboxes are reachable over
// the network
type URLProvider interface {
	SandboxURL(ctx context.Context, sandboxID string) (string, error)
}
