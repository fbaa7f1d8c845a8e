// Package session owns the persisted conversation threads: the
// model-facing message history and the UI-facing display transcript.
package session

import (
	"time"

	"github.com/quillpad/quill/internal/llm"
)

// DisplayRole classifies a transcript entry.
type DisplayRole string

const (
	DisplayUser       DisplayRole = "user"
	DisplayAssistant  DisplayRole = "assistant"
	DisplaySystem     DisplayRole = "system"
	DisplayToolResult DisplayRole = "tool_result"
)

// DisplayMessage is a UI-facing transcript entry, distinct from the
// model-facing llm.Message history.
type DisplayMessage struct {
	Role      DisplayRole    `json:"role"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	ToolCalls []llm.ToolCall `json:"tool_calls,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

// Session is one independently-addressable conversation thread. Messages
// and Display are append-only and trimmed only from the oldest end, each
// independently of the other.
type Session struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Messages  []llm.Message    `json:"messages"`
	Display   []DisplayMessage `json:"display"`
}
