// Package models holds the shared data types exchanged between the
// session store, turn engine, backend client, and transport surfaces.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Scope determines how (user, channel) pairs map onto sessions.
type Scope string

const (
	// ScopePerSender gives each distinct user its own session per channel.
	ScopePerSender Scope = "per-sender"
	// ScopeMain collapses every sender into a single shared session.
	ScopeMain Scope = "main"
	// ScopePerPeer keys sessions by the (identity-resolved) peer alone.
	ScopePerPeer Scope = "per-peer"
	// ScopePerChannelPeer keys sessions by channel and peer together.
	ScopePerChannelPeer Scope = "per-channel-peer"
)

// Session identifies one durable conversation.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Channel   string    `json:"channel"`
	Scope     Scope     `json:"scope"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one entry in a session transcript. Messages are append-only;
// ModelUsed and Tokens are set only where the values are known.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	ModelUsed string    `json:"model_used,omitempty"`
	Tokens    *int      `json:"tokens,omitempty"`
}

// ToolCall represents a model's request to execute a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// TokenUsage is the backend's per-call token breakdown.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// SessionStats summarizes a session transcript.
type SessionStats struct {
	TotalMessages     int            `json:"total_messages"`
	UserMessages      int            `json:"user_messages"`
	AssistantMessages int            `json:"assistant_messages"`
	TotalTokens       int            `json:"total_tokens"`
	ModelsUsed        map[string]int `json:"models_used,omitempty"`
}
