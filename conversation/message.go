package conversation

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a conversation message
type Role string

// Message roles
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a session's conversation history. Tool-role
// messages carry the id of the assistant tool call they answer.
type Message struct {
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	Timestamp  time.Time      `json:"timestamp"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// decodeMessages converts a stored history value back into typed messages.
// Values read from a live store are []Message; values reloaded from a disk
// snapshot arrive as generic JSON. A round-trip through encoding/json covers
// both shapes.
func decodeMessages(raw any) ([]Message, error) {
	if msgs, ok := raw.([]Message); ok {
		out := make([]Message, len(msgs))
		copy(out, msgs)
		return out, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
