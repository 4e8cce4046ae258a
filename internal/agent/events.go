package agent

import "encoding/json"

// EventType names an event in the chat stream.
type EventType string

const (
	EventToolCall     EventType = "tool_call"
	EventToolResult   EventType = "tool_result"
	EventContent      EventType = "content"
	EventDone         EventType = "done"
	EventConversation EventType = "conversation"
	EventError        EventType = "error"
)

// Event is one frame of the chat stream. Data is the type-specific payload.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// ToolCallData is the payload of a tool_call event.
type ToolCallData struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolResultData is the payload of a tool_result event. Result holds the
// JSON-serialized tool return value or error payload.
type ToolResultData struct {
	Name   string `json:"name"`
	Result string `json:"result"`
}

// ConversationData is the payload of a conversation event.
type ConversationData struct {
	ConversationID string `json:"conversationId"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Message string `json:"message"`
}

// ToolCallEvent builds a tool_call event. Arguments that are not a JSON object are
// reported as an empty object.
func ToolCallEvent(name string, args json.RawMessage) Event {
	if !isJSONObject(args) {
		args = json.RawMessage("{}")
	}
	return Event{Type: EventToolCall, Data: ToolCallData{Name: name, Args: args}}
}

// ToolResultEvent builds a tool_result event.
func ToolResultEvent(name, result string) Event {
	return Event{Type: EventToolResult, Data: ToolResultData{Name: name, Result: result}}
}

// ContentEvent builds a content event.
func ContentEvent(text string) Event {
	return Event{Type: EventContent, Data: text}
}

// DoneEvent builds the terminal done event.
func DoneEvent() Event {
	return Event{Type: EventDone, Data: struct{}{}}
}

// ConversationEvent announces the conversation a turn was stored in.
func ConversationEvent(id string) Event {
	return Event{Type: EventConversation, Data: ConversationData{ConversationID: id}}
}

// ErrorEvent builds the terminal error event.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Data: ErrorData{Message: message}}
}

func isJSONObject(raw json.RawMessage) bool {
	if !json.Valid(raw) {
		return false
	}
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
