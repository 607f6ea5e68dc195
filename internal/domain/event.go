package domain

// EventType discriminates StreamEvent variants on the wire.
type EventType string

const (
	EventStatus EventType = "status"
	EventToken  EventType = "token"
	EventTool   EventType = "tool"
	EventError  EventType = "error"
	EventDone   EventType = "done"
)

// StreamEvent is one outbound server-sent event. Only the fields belonging to
// Type are populated.
type StreamEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`
	Value   string    `json:"value,omitempty"`
	Name    string    `json:"name,omitempty"`
	Payload any       `json:"payload,omitempty"`
}

func StatusEvent(message string) StreamEvent {
	return StreamEvent{Type: EventStatus, Message: message}
}

func TokenEvent(value string) StreamEvent {
	return StreamEvent{Type: EventToken, Value: value}
}

func ToolEvent(name string, payload any) StreamEvent {
	return StreamEvent{Type: EventTool, Name: name, Payload: payload}
}

func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Message: message}
}

func DoneEvent() StreamEvent {
	return StreamEvent{Type: EventDone}
}

// ToolErrorPayload is the tool event payload used when a tool call failed.
type ToolErrorPayload struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}
