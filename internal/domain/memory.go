package domain

import "time"

// Role tags a conversational turn inside a memory event payload.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
	RoleTool      Role = "TOOL"
)

// MemoryTurn is one role-tagged turn inside a memory event payload.
type MemoryTurn struct {
	Role Role
	Text string
}

// MemoryEvent is an append-only record in the conversation memory service,
// scoped by actor and session and ordered by timestamp.
type MemoryEvent struct {
	EventID   string
	ActorID   string
	SessionID string
	Timestamp time.Time
	Turns     []MemoryTurn
}
