package core

import (
	"time"

	"github.com/google/uuid"
)

// Role tags a message or content with its conversational origin.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Metadata keys attached to assistant messages.
const (
	MetadataUsedTools     = "used_tools"
	MetadataToolsExecuted = "tools_executed"
)

// Message is one immutable entry of a Conversation.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewMessage creates a message stamped with a fresh id and the current time.
func NewMessage(role Role, content string, metadata map[string]any) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// ToolsExecuted returns the tools_executed metadata entry, if any.
func (m Message) ToolsExecuted() []string {
	switch v := m.Metadata[MetadataToolsExecuted].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
