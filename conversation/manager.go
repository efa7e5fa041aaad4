package conversation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/isdmx/agentbox/memory"
)

// Default history limits
const (
	DefaultMaxHistory  = 50
	DefaultContextChar = 200
)

// Manager maintains bounded per-session message history on top of the
// memory store. The history cap counts stored messages; a leading
// system-role message is pinned at position 0 and never evicted.
type Manager struct {
	logger     *zap.Logger
	store      *memory.Store
	maxHistory int
	charBudget int
}

// ManagerOption defines a functional option for Manager
type ManagerOption func(*Manager)

// WithMaxHistory overrides the retained message cap
func WithMaxHistory(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxHistory = n
		}
	}
}

// WithContextCharBudget overrides the per-message character budget used by
// GetContext
func WithContextCharBudget(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.charBudget = n
		}
	}
}

// NewManager creates a conversation manager backed by store
func NewManager(logger *zap.Logger, store *memory.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		logger:     logger,
		store:      store,
		maxHistory: DefaultMaxHistory,
		charBudget: DefaultContextChar,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func historyKey(sessionID string) string {
	return "conversation:" + sessionID
}

// GetMessages returns the session's history: at most maxHistory messages in
// insertion order, plus the pinned system message when one exists.
func (m *Manager) GetMessages(sessionID string) []Message {
	raw, ok := m.store.Get(historyKey(sessionID))
	if !ok {
		return nil
	}

	msgs, err := decodeMessages(raw)
	if err != nil {
		m.logger.Warn("discarding undecodable conversation history",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil
	}

	return m.trim(msgs)
}

// AddMessage appends a message to the session's history and evicts the
// oldest unpinned messages beyond the cap
func (m *Manager) AddMessage(sessionID string, msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	history := m.GetMessages(sessionID)
	history = append(history, msg)
	history = m.trim(history)

	m.store.Set(historyKey(sessionID), history, 0)
}

// ClearSession deletes all history for the session
func (m *Manager) ClearSession(sessionID string) {
	m.store.Delete(historyKey(sessionID))
}

// GetContext renders the last window messages as role-labeled text with each
// body truncated to the character budget. This is a display aid only.
func (m *Manager) GetContext(sessionID string, window int) string {
	msgs := m.GetMessages(sessionID)
	if window > 0 && len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}

	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		content := msg.Content
		if len(content) > m.charBudget {
			cut := m.charBudget
			// Back off to a rune boundary so the cut never splits a
			// multi-byte character.
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut]
		}
		role := string(msg.Role)
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		parts = append(parts, fmt.Sprintf("%s: %s", role, content))
	}

	return strings.Join(parts, "\n")
}

// Summary describes a session's history at a glance
type Summary struct {
	MessageCount      int        `json:"message_count"`
	UserMessages      int        `json:"user_messages"`
	AssistantMessages int        `json:"assistant_messages"`
	FirstMessageAt    *time.Time `json:"first_message_at,omitempty"`
	LastMessageAt     *time.Time `json:"last_message_at,omitempty"`
	DurationSeconds   float64    `json:"duration_seconds"`
}

// GetSummary returns summary statistics for the session's history
func (m *Manager) GetSummary(sessionID string) Summary {
	msgs := m.GetMessages(sessionID)
	if len(msgs) == 0 {
		return Summary{}
	}

	s := Summary{MessageCount: len(msgs)}
	for _, msg := range msgs {
		switch msg.Role {
		case RoleUser:
			s.UserMessages++
		case RoleAssistant:
			s.AssistantMessages++
		}
	}

	first := msgs[0].Timestamp
	last := msgs[len(msgs)-1].Timestamp
	s.FirstMessageAt = &first
	s.LastMessageAt = &last
	s.DurationSeconds = last.Sub(first).Seconds()

	return s
}

// trim enforces the history cap, keeping the most recent messages and a
// pinned leading system message if one is present
func (m *Manager) trim(msgs []Message) []Message {
	if len(msgs) == 0 {
		return msgs
	}

	if msgs[0].Role == RoleSystem {
		rest := msgs[1:]
		if len(rest) > m.maxHistory {
			rest = rest[len(rest)-m.maxHistory:]
		}
		out := make([]Message, 0, len(rest)+1)
		out = append(out, msgs[0])
		return append(out, rest...)
	}

	if len(msgs) > m.maxHistory {
		msgs = msgs[len(msgs)-m.maxHistory:]
	}
	return msgs
}
