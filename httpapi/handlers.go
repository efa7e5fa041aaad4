package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/isdmx/agentbox/sandbox"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startSessionRequest struct {
	SessionID   string `json:"session_id"`
	Environment string `json:"environment"`
	Backend     string `json:"backend"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	info, err := s.orchestrator.Start(r.Context(), req.SessionID, req.Environment, sandbox.Kind(req.Backend))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.orchestrator.List()})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	info, err := s.orchestrator.Status(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	stopped := s.orchestrator.Stop(r.Context(), r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

type executeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code is required"})
		return
	}
	if req.Language == "" {
		req.Language = "python"
	}

	result, err := s.sandboxes.Execute(r.Context(), r.PathValue("id"), req.Code, req.Language)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path is required"})
		return
	}

	data, err := s.sandboxes.ReadFile(r.Context(), r.PathValue("id"), path)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"path": path, "content": string(data)})
}

type writeFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	var req writeFileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path is required"})
		return
	}

	if err := s.sandboxes.WriteFile(r.Context(), r.PathValue("id"), req.Path, []byte(req.Content)); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"path": req.Path, "status": "written"})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}

	files, err := s.sandboxes.ListFiles(r.Context(), r.PathValue("id"), path)
	if err != nil {
		writeError(w, err)
		return
	}
	if files == nil {
		files = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"directory": path, "files": files})
}

func (s *Server) handleSandboxURL(w http.ResponseWriter, r *http.Request) {
	url, err := s.sandboxes.SandboxURL(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	resp, err := s.agent.Run(r.Context(), r.PathValue("id"), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	chunks, err := s.agent.Stream(r.Context(), r.PathValue("id"), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for chunk := range chunks {
		if _, err := w.Write([]byte(chunk)); err != nil {
			s.logger.Debug("stream client disconnected", zap.Error(err))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": s.conversations.GetMessages(sessionID),
		"summary":  s.conversations.GetSummary(sessionID),
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	s.agent.ResetSession(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleGone(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("deprecated route called", zap.String("path", r.URL.Path))
	writeJSON(w, http.StatusGone, map[string]string{
		"error":       "this endpoint has been removed",
		"replacement": "/api/sessions",
	})
}
