package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/agentbox/agent"
	"github.com/isdmx/agentbox/conversation"
	"github.com/isdmx/agentbox/lifecycle"
	"github.com/isdmx/agentbox/sandbox"
)

// Server exposes the session, sandbox, and chat operations over HTTP
type Server struct {
	logger        *zap.Logger
	orchestrator  *lifecycle.Orchestrator
	sandboxes     *sandbox.Manager
	agent         *agent.Agent
	conversations *conversation.Manager

	httpServer *http.Server
}

// NewServer creates an HTTP API server listening on port
func NewServer(logger *zap.Logger, port int, orch *lifecycle.Orchestrator, sandboxes *sandbox.Manager, ag *agent.Agent, conv *conversation.Manager) *Server {
	s := &Server{
		logger:        logger,
		orchestrator:  orch,
		sandboxes:     sandboxes,
		agent:         ag,
		conversations: conv,
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/sessions", s.handleStartSession)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionStatus)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleStopSession)

	mux.HandleFunc("POST /api/sessions/{id}/execute", s.handleExecute)
	mux.HandleFunc("GET /api/sessions/{id}/files", s.handleReadFile)
	mux.HandleFunc("PUT /api/sessions/{id}/files", s.handleWriteFile)
	mux.HandleFunc("GET /api/sessions/{id}/files/list", s.handleListFiles)
	mux.HandleFunc("GET /api/sessions/{id}/url", s.handleSandboxURL)

	mux.HandleFunc("POST /api/sessions/{id}/chat", s.handleChat)
	mux.HandleFunc("POST /api/sessions/{id}/chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /api/sessions/{id}/history", s.handleHistory)
	mux.HandleFunc("DELETE /api/sessions/{id}/history", s.handleClearHistory)

	// Pre-session-model routes, retired when sandbox lifetime became bound
	// to sessions. Kept as tombstones so old clients get a clear signal.
	mux.HandleFunc("/api/sandbox/start", s.handleGone)
	mux.HandleFunc("/api/sandbox/stop", s.handleGone)
	mux.HandleFunc("/api/sandbox/status", s.handleGone)

	return s.logRequests(mux)
}

// Start begins serving in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.logger.Info("http api listening", zap.String("addr", s.httpServer.Addr))

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the sandbox error taxonomy onto HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	var (
		notFound    *sandbox.NotFoundError
		unsupported *sandbox.UnsupportedOperationError
		validation  *sandbox.ValidationError
		provision   *sandbox.ProvisionError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &unsupported):
		status = http.StatusBadRequest
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.As(err, &provision):
		status = http.StatusBadGateway
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}
