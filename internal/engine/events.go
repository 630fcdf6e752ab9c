package engine

import "github.com/hearthfire/hearth/pkg/models"

// EventType names a turn event variant on the wire.
type EventType string

const (
	EventConnected EventType = "connected"
	EventStart     EventType = "start"
	EventStream    EventType = "stream"
	EventToolUse   EventType = "tool_use"
	EventEnd       EventType = "end"
	EventError     EventType = "error"
	EventPing      EventType = "ping"
)

// Tool-use statuses carried on tool_use events.
const (
	ToolStatusRunning = "running"
	ToolStatusDone    = "done"
)

// Event is one turn-engine event delivered to observers. Only the fields
// belonging to the variant named by Type are populated.
type Event struct {
	Type        EventType `json:"type"`
	SessionID   string    `json:"session_id,omitempty"`
	MessageID   string    `json:"message_id,omitempty"`
	Content     string    `json:"content,omitempty"`
	Tool        string    `json:"name,omitempty"`
	Status      string    `json:"status,omitempty"`
	Result      string    `json:"result,omitempty"`
	TotalTokens int       `json:"total_tokens,omitempty"`
	Model       string    `json:"model,omitempty"`
	// Token breakdown for the SSE completion frame; the WS end frame
	// carries only the total.
	PromptTokens     int `json:"-"`
	CompletionTokens int `json:"-"`
	LatencyMS   int64     `json:"latency_ms,omitempty"`
	Error       string    `json:"error,omitempty"`
	ErrorCode   int       `json:"error_code,omitempty"`
}

// Connected builds the connection-established event.
func Connected(sessionID string) Event {
	return Event{Type: EventConnected, SessionID: sessionID}
}

// Start builds the response-started event.
func Start(sessionID, messageID string) Event {
	return Event{Type: EventStart, SessionID: sessionID, MessageID: messageID}
}

// Stream builds a text-fragment event.
func Stream(content string) Event {
	return Event{Type: EventStream, Content: content}
}

// ToolUse builds a tool lifecycle event.
func ToolUse(name, status, result string) Event {
	return Event{Type: EventToolUse, Tool: name, Status: status, Result: result}
}

// End builds the turn-completed event.
func End(messageID string, totalTokens int, model string, latencyMS int64) Event {
	return Event{Type: EventEnd, MessageID: messageID, TotalTokens: totalTokens, Model: model, LatencyMS: latencyMS}
}

// EndWithUsage builds the turn-completed event carrying the full token
// breakdown.
func EndWithUsage(messageID string, usage *models.TokenUsage, model string, latencyMS int64) Event {
	ev := Event{Type: EventEnd, MessageID: messageID, Model: model, LatencyMS: latencyMS}
	if usage != nil {
		ev.TotalTokens = usage.TotalTokens
		ev.PromptTokens = usage.PromptTokens
		ev.CompletionTokens = usage.CompletionTokens
	}
	return ev
}

// Error builds an error event.
func Error(message string, code int) Event {
	return Event{Type: EventError, Error: message, ErrorCode: code}
}

// Ping builds the keepalive event.
func Ping() Event {
	return Event{Type: EventPing}
}
