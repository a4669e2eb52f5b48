package domain

// ChatMessage is the provider-agnostic message shape exchanged with the model.
// A message carries plain text, tool calls requested by the model, or tool
// results fed back to it.
type ChatMessage struct {
	Role        string
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolCall is a model request to invoke one named tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult is the outcome of a tool invocation, correlated by call id.
type ToolResult struct {
	ID      string
	Text    string
	IsError bool
}

// ModelReply is one model turn: assistant text plus any requested tool calls.
type ModelReply struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
}

// Stream event types emitted by the agent runtime. The caller always receives
// a well-formed event stream terminated by done or error.
const (
	EventChunk   = "chunk"
	EventToolUse = "tool_use"
	EventError   = "error"
	EventDone    = "done"
)

// StreamEvent is a single event on the agent response stream.
type StreamEvent struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Tool      string `json:"tool,omitempty"`
	Error     string `json:"error,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}
