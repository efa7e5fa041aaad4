package sandbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeService is a minimal in-process stand-in for the hosted sandbox API
type fakeService struct {
	t *testing.T

	createStatus int
	execBody     map[string]any
	files        map[string][]byte
	listFiles    []string

	lastAuth     string
	lastTemplate string
}

func (s *fakeService) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/sandboxes", func(w http.ResponseWriter, r *http.Request) {
		s.lastAuth = r.Header.Get("Authorization")

		var req struct {
			Template  string `json:"template"`
			SessionID string `json:"session_id"`
		}
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))
		s.lastTemplate = req.Template

		if s.createStatus != 0 {
			w.WriteHeader(s.createStatus)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"sandbox_id": "rb-1",
			"url":        "https://rb-1.sandbox.example.com",
		})
	})

	mux.HandleFunc("DELETE /v1/sandboxes/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /v1/sandboxes/{id}/exec", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.execBody)
	})

	mux.HandleFunc("GET /v1/sandboxes/{id}/files", func(w http.ResponseWriter, r *http.Request) {
		data, ok := s.files[r.URL.Query().Get("path")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(data)
	})

	mux.HandleFunc("PUT /v1/sandboxes/{id}/files", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if s.files == nil {
			s.files = make(map[string][]byte)
		}
		s.files[r.URL.Query().Get("path")] = data
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /v1/sandboxes/{id}/files/list", func(w http.ResponseWriter, _ *http.Request) {
		if s.listFiles == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string][]string{"files": s.listFiles})
	})

	return mux
}

func newRemoteFixture(t *testing.T, svc *fakeService) *RemoteBackend {
	t.Helper()
	svc.t = t

	srv := httptest.NewServer(svc.handler())
	t.Cleanup(srv.Close)

	return NewRemoteBackend(zaptest.NewLogger(t), RemoteConfig{
		BaseURL:         srv.URL,
		APIKey:          "test-key",
		DefaultTemplate: "py-env",
	})
}

func TestRemoteCreate(t *testing.T) {
	svc := &fakeService{}
	b := newRemoteFixture(t, svc)

	handle, err := b.Create(context.Background(), "sess", "")
	require.NoError(t, err)

	assert.Equal(t, "rb-1", handle.SandboxID)
	assert.Equal(t, KindRemote, handle.Kind)
	assert.Equal(t, "https://rb-1.sandbox.example.com", handle.URL)
	assert.Equal(t, "py-env", svc.lastTemplate)
	assert.Equal(t, "Bearer test-key", svc.lastAuth)
}

func TestRemoteCreateExplicitTemplate(t *testing.T) {
	svc := &fakeService{}
	b := newRemoteFixture(t, svc)

	_, err := b.Create(context.Background(), "sess", "ds-env")
	require.NoError(t, err)
	assert.Equal(t, "ds-env", svc.lastTemplate)
}

func TestRemoteCreateFailureIsProvisionError(t *testing.T) {
	svc := &fakeService{createStatus: http.StatusServiceUnavailable}
	b := newRemoteFixture(t, svc)

	_, err := b.Create(context.Background(), "sess", "")

	var pe *ProvisionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindRemote, pe.Kind)
	assert.True(t, IsRetryable(err))
}

func TestRemoteDestroy(t *testing.T) {
	b := newRemoteFixture(t, &fakeService{})

	handle, err := b.Create(context.Background(), "sess", "")
	require.NoError(t, err)

	assert.True(t, b.Destroy(context.Background(), handle.SandboxID))
	// Second destroy has no recorded sandbox
	assert.False(t, b.Destroy(context.Background(), handle.SandboxID))
}

func TestRemoteDestroyUnknown(t *testing.T) {
	b := newRemoteFixture(t, &fakeService{})
	assert.False(t, b.Destroy(context.Background(), "ghost"))
}

func TestRemoteExecuteSuccess(t *testing.T) {
	artifact := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	svc := &fakeService{
		execBody: map[string]any{
			"stdout": "42\n",
			"stderr": "",
			"artifacts": []map[string]string{
				{"name": "chart.png", "content_type": "image/png", "data": artifact},
			},
		},
	}
	b := newRemoteFixture(t, svc)

	handle, err := b.Create(context.Background(), "sess", "")
	require.NoError(t, err)

	result, err := b.Execute(context.Background(), handle.SandboxID, "print(42)", "python")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "42\n", result.Stdout)
	require.Len(t, result.Artifacts, 1)
	assert.Equal(t, "chart.png", result.Artifacts[0].Name)
	assert.Equal(t, []byte("png-bytes"), result.Artifacts[0].Data)
}

func TestRemoteExecuteUserCodeError(t *testing.T) {
	// A traceback is data, not a transport failure
	svc := &fakeService{
		execBody: map[string]any{
			"stdout": "",
			"stderr": "Traceback (most recent call last)",
			"error":  "NameError: name 'x' is not defined",
		},
	}
	b := newRemoteFixture(t, svc)

	handle, err := b.Create(context.Background(), "sess", "")
	require.NoError(t, err)

	result, err := b.Execute(context.Background(), handle.SandboxID, "x", "python")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "NameError: name 'x' is not defined", result.Error)
}

func TestRemoteExecuteUnknownSandbox(t *testing.T) {
	b := newRemoteFixture(t, &fakeService{})

	_, err := b.Execute(context.Background(), "ghost", "print(1)", "python")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestRemoteFileRoundTrip(t *testing.T) {
	svc := &fakeService{}
	b := newRemoteFixture(t, svc)

	handle, err := b.Create(context.Background(), "sess", "")
	require.NoError(t, err)

	require.NoError(t, b.WriteFile(context.Background(), handle.SandboxID, "/data/input.csv", []byte("a,b\n1,2\n")))

	data, err := b.ReadFile(context.Background(), handle.SandboxID, "/data/input.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("a,b\n1,2\n"), data)
}

func TestRemoteReadMissingFile(t *testing.T) {
	b := newRemoteFixture(t, &fakeService{})

	handle, err := b.Create(context.Background(), "sess", "")
	require.NoError(t, err)

	_, err = b.ReadFile(context.Background(), handle.SandboxID, "/missing")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "path", nf.Resource)
}

func TestRemoteListFiles(t *testing.T) {
	svc := &fakeService{listFiles: []string{"input.csv", "report.txt"}}
	b := newRemoteFixture(t, svc)

	handle, err := b.Create(context.Background(), "sess", "")
	require.NoError(t, err)

	files, err := b.ListFiles(context.Background(), handle.SandboxID, "/data")
	require.NoError(t, err)
	assert.Equal(t, []string{"input.csv", "report.txt"}, files)
}

func TestRemoteListMissingDirectory(t *testing.T) {
	b := newRemoteFixture(t, &fakeService{})

	handle, err := b.Create(context.Background(), "sess", "")
	require.NoError(t, err)

	files, err := b.ListFiles(context.Background(), handle.SandboxID, "/missing")
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.NotNil(t, files)
}

func TestRemoteSandboxURL(t *testing.T) {
	b := newRemoteFixture(t, &fakeService{})

	handle, err := b.Create(context.Background(), "sess", "")
	require.NoError(t, err)

	url, err := b.SandboxURL(context.Background(), handle.SandboxID)
	require.NoError(t, err)
	assert.Equal(t, "https://rb-1.sandbox.example.com", url)

	_, err = b.SandboxURL(context.Background(), "ghost")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}
