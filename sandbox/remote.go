package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RemoteConfig holds settings for the remote-managed backend
type RemoteConfig struct {
	BaseURL         string
	APIKey          string
	DefaultTemplate string
	RequestTimeout  time.Duration
}

// RemoteBackend drives a hosted sandbox service over HTTP. It supports the
// full capability set: code execution, file access, and reachable URLs.
type RemoteBackend struct {
	logger *zap.Logger
	config RemoteConfig
	client *http.Client

	mu        sync.RWMutex
	sandboxes map[string]remoteSandbox // sandbox id -> state
}

type remoteSandbox struct {
	sessionID string
	url       string
}

// RemoteOption defines a functional option for RemoteBackend
type RemoteOption func(*RemoteBackend)

// WithHTTPClient sets the HTTP client for RemoteBackend
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(b *RemoteBackend) {
		b.client = client
	}
}

// NewRemoteBackend creates a RemoteBackend for the configured service
func NewRemoteBackend(logger *zap.Logger, config RemoteConfig, opts ...RemoteOption) *RemoteBackend {
	b := &RemoteBackend{
		logger:    logger,
		config:    config,
		sandboxes: make(map[string]remoteSandbox),
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		timeout := config.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		b.client = &http.Client{Timeout: timeout}
	}

	return b
}

// Kind identifies the backend
func (*RemoteBackend) Kind() Kind { return KindRemote }

type createRequest struct {
	Template  string `json:"template"`
	SessionID string `json:"session_id"`
}

type createResponse struct {
	SandboxID string `json:"sandbox_id"`
	URL       string `json:"url"`
}

// Create provisions a sandbox from a template id on the hosted service
func (b *RemoteBackend) Create(ctx context.Context, sessionID, environment string) (Handle, error) {
	template := environment
	if template == "" {
		template = b.config.DefaultTemplate
	}

	var created createResponse
	err := b.doJSON(ctx, http.MethodPost, "/v1/sandboxes", createRequest{
		Template:  template,
		SessionID: sessionID,
	}, &created)
	if err != nil {
		return Handle{}, &ProvisionError{Kind: KindRemote, Err: err}
	}

	b.mu.Lock()
	b.sandboxes[created.SandboxID] = remoteSandbox{sessionID: sessionID, url: created.URL}
	b.mu.Unlock()

	b.logger.Info("remote sandbox created",
		zap.String("session_id", sessionID),
		zap.String("sandbox_id", created.SandboxID),
		zap.String("template", template))

	return Handle{SandboxID: created.SandboxID, Kind: KindRemote, URL: created.URL}, nil
}

// Destroy kills the remote sandbox. Unknown or already-destroyed sandboxes
// return false without error.
func (b *RemoteBackend) Destroy(ctx context.Context, sandboxID string) bool {
	b.mu.Lock()
	_, known := b.sandboxes[sandboxID]
	delete(b.sandboxes, sandboxID)
	b.mu.Unlock()

	if !known {
		return false
	}

	resp, err := b.do(ctx, http.MethodDelete, "/v1/sandboxes/"+url.PathEscape(sandboxID), nil, "")
	if err != nil {
		b.logger.Warn("error destroying remote sandbox",
			zap.String("sandbox_id", sandboxID),
			zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false
	}
	if resp.StatusCode >= 300 {
		b.logger.Warn("unexpected status destroying remote sandbox",
			zap.String("sandbox_id", sandboxID),
			zap.Int("status", resp.StatusCode))
		return false
	}

	b.logger.Info("remote sandbox destroyed", zap.String("sandbox_id", sandboxID))
	return true
}

type execRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type execResponse struct {
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	Error     string `json:"error"`
	Artifacts []struct {
		Name        string `json:"name"`
		ContentType string `json:"content_type"`
		Data        string `json:"data"` // base64
	} `json:"artifacts"`
}

// Execute runs code in the sandbox. User-code failures come back in the
// result with Success false; only interpreter or transport failures produce
// an error.
func (b *RemoteBackend) Execute(ctx context.Context, sandboxID, code, language string) (ExecResult, error) {
	if err := b.requireSandbox(sandboxID); err != nil {
		return ExecResult{}, err
	}
	if language == "" {
		language = "python"
	}

	var out execResponse
	err := b.doJSON(ctx, http.MethodPost, "/v1/sandboxes/"+url.PathEscape(sandboxID)+"/exec", execRequest{
		Code:     code,
		Language: language,
	}, &out)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return ExecResult{}, nf
		}
		return ExecResult{}, &ExecutionError{SandboxID: sandboxID, Err: err}
	}

	result := ExecResult{
		Success: out.Error == "",
		Stdout:  out.Stdout,
		Stderr:  out.Stderr,
		Error:   out.Error,
	}
	for _, a := range out.Artifacts {
		data, decErr := base64.StdEncoding.DecodeString(a.Data)
		if decErr != nil {
			b.logger.Warn("skipping undecodable artifact",
				zap.String("sandbox_id", sandboxID),
				zap.String("name", a.Name),
				zap.Error(decErr))
			continue
		}
		result.Artifacts = append(result.Artifacts, Artifact{
			Name:        a.Name,
			ContentType: a.ContentType,
			Data:        data,
		})
	}

	return result, nil
}

// ReadFile fetches a file's contents from the sandbox filesystem
func (b *RemoteBackend) ReadFile(ctx context.Context, sandboxID, path string) ([]byte, error) {
	if err := b.requireSandbox(sandboxID); err != nil {
		return nil, err
	}

	resp, err := b.do(ctx, http.MethodGet, b.filesPath(sandboxID, path), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{Resource: "path", ID: path}
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("read file %s: unexpected status %d", path, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// WriteFile stores content at path in the sandbox filesystem
func (b *RemoteBackend) WriteFile(ctx context.Context, sandboxID, path string, content []byte) error {
	if err := b.requireSandbox(sandboxID); err != nil {
		return err
	}

	resp, err := b.do(ctx, http.MethodPut, b.filesPath(sandboxID, path), bytes.NewReader(content), "application/octet-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &NotFoundError{Resource: "path", ID: path}
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("write file %s: unexpected status %d", path, resp.StatusCode)
	}

	return nil
}

type listResponse struct {
	Files []string `json:"files"`
}

// ListFiles returns directory entries. A nonexistent directory yields an
// empty slice.
func (b *RemoteBackend) ListFiles(ctx context.Context, sandboxID, directory string) ([]string, error) {
	if err := b.requireSandbox(sandboxID); err != nil {
		return nil, err
	}

	resp, err := b.do(ctx, http.MethodGet,
		"/v1/sandboxes/"+url.PathEscape(sandboxID)+"/files/list?path="+url.QueryEscape(directory), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return []string{}, nil
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("list files %s: unexpected status %d", directory, resp.StatusCode)
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Files == nil {
		return []string{}, nil
	}
	return out.Files, nil
}

// SandboxURL returns the reachable URL recorded when the sandbox was created
func (b *RemoteBackend) SandboxURL(_ context.Context, sandboxID string) (string, error) {
	b.mu.RLock()
	sb, ok := b.sandboxes[sandboxID]
	b.mu.RUnlock()

	if !ok {
		return "", &NotFoundError{Resource: "sandbox", ID: sandboxID}
	}
	return sb.url, nil
}

func (b *RemoteBackend) requireSandbox(sandboxID string) error {
	b.mu.RLock()
	_, ok := b.sandboxes[sandboxID]
	b.mu.RUnlock()

	if !ok {
		return &NotFoundError{Resource: "sandbox", ID: sandboxID}
	}
	return nil
}

func (b *RemoteBackend) filesPath(sandboxID, path string) string {
	return "/v1/sandboxes/" + url.PathEscape(sandboxID) + "/files?path=" + url.QueryEscape(path)
}

func (b *RemoteBackend) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(b.config.BaseURL, "/")+path, body)
	if err != nil {
		return nil, err
	}
	if b.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.config.APIKey)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return b.client.Do(req)
}

func (b *RemoteBackend) doJSON(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	resp, err := b.do(ctx, method, path, bytes.NewReader(payload), "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &NotFoundError{Resource: "sandbox", ID: path}
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
