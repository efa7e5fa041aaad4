package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/agentbox/sandbox"
)

// Session status values
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// SessionInfo is the persisted record of one session
type SessionInfo struct {
	SessionID   string     `json:"session_id"`
	SandboxID   string     `json:"sandbox_id"`
	Kind        string     `json:"kind"`
	URL         string     `json:"url,omitempty"`
	Environment string     `json:"environment,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StoppedAt   *time.Time `json:"stopped_at,omitempty"`
}

// StateManager persists session records as one JSON file per session, so
// session identity survives a process restart even though live sandbox
// bindings do not.
type StateManager struct {
	logger *zap.Logger
	dir    string
}

// NewStateManager creates a state manager rooted at dir, creating it if
// needed
func NewStateManager(logger *zap.Logger, dir string) (*StateManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	return &StateManager{logger: logger, dir: dir}, nil
}

func (s *StateManager) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// Save writes the session record to disk
func (s *StateManager) Save(info SessionInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	if err := os.WriteFile(s.path(info.SessionID), data, 0o644); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}

	return nil
}

// Load reads the session record for sessionID
func (s *StateManager) Load(sessionID string) (SessionInfo, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return SessionInfo{}, &sandbox.NotFoundError{Resource: "session", ID: sessionID}
		}
		return SessionInfo{}, fmt.Errorf("read session state: %w", err)
	}

	var info SessionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return SessionInfo{}, fmt.Errorf("decode session state: %w", err)
	}

	return info, nil
}

// Delete removes the session record. Missing records are not an error.
func (s *StateManager) Delete(sessionID string) error {
	err := os.Remove(s.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete session state: %w", err)
	}
	return nil
}

// List returns all persisted session records. Undecodable files are skipped
// with a log entry.
func (s *StateManager) List() []SessionInfo {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("failed to list session state dir", zap.String("dir", s.dir), zap.Error(err))
		return nil
	}

	var infos []SessionInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		info, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			s.logger.Warn("skipping unreadable session state", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		infos = append(infos, info)
	}

	return infos
}
