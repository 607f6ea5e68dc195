package domain

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the roles a client may send.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// ChatMessage is a single client-supplied conversation turn. Content may be
// empty for assistant turns that only carried tool calls.
type ChatMessage struct {
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"toolCallId,omitempty"`
}

// Units is the unit system requested by the client.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// Valid reports whether u is a known unit system.
func (u Units) Valid() bool {
	return u == UnitsMetric || u == UnitsImperial
}

// ChatSettings carries per-request preferences.
type ChatSettings struct {
	Units Units `json:"units"`
}

// Normalized returns a copy with defaults applied.
func (s ChatSettings) Normalized() ChatSettings {
	if !s.Units.Valid() {
		s.Units = UnitsMetric
	}
	return s
}
