package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind tags the variant carried by an Event.
type Kind string

const (
	KindChatMessage  Kind = "chat_message"
	KindSystemNotice Kind = "system_notice"
)

// Event is what travels through the broadcast group. Exactly one variant is
// populated, selected by Kind.
type Event struct {
	Kind     Kind
	Message  string
	Username string
	Notice   string
}

// NewChatMessage builds a chat line event.
func NewChatMessage(username, message string) Event {
	return Event{Kind: KindChatMessage, Message: message, Username: username}
}

// NewSystemNotice builds a notice event, such as a ticket status change.
func NewSystemNotice(text string) Event {
	return Event{Kind: KindSystemNotice, Notice: text}
}

// MessageFrame is the outbound chat frame sent to clients.
type MessageFrame struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

// NoticeFrame is the outbound frame for system notices.
type NoticeFrame struct {
	Notice string `json:"notice"`
}

// ErrorFrame is only ever written to the connection that caused it.
type ErrorFrame struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// InboundFrame is what clients send. Message is a pointer so a missing
// field can be told apart from an empty string.
type InboundFrame struct {
	Message *string `json:"message"`
}

// Frame maps the event to its client representation.
func (e Event) Frame() (any, error) {
	switch e.Kind {
	case KindChatMessage:
		return MessageFrame{Message: e.Message, Username: e.Username}, nil
	case KindSystemNotice:
		return NoticeFrame{Notice: e.Notice}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
}

var errMissingRoom = errors.New("envelope without room")

// envelope is the encoding used between processes on a Bus.
type envelope struct {
	Room     string `json:"room"`
	Kind     Kind   `json:"kind"`
	Message  string `json:"message,omitempty"`
	Username string `json:"username,omitempty"`
	Notice   string `json:"notice,omitempty"`
}

func encodeEnvelope(room string, e Event) ([]byte, error) {
	if _, err := e.Frame(); err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		Room:     room,
		Kind:     e.Kind,
		Message:  e.Message,
		Username: e.Username,
		Notice:   e.Notice,
	})
}

func decodeEnvelope(data []byte) (string, Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", Event{}, err
	}
	if env.Room == "" {
		return "", Event{}, errMissingRoom
	}
	ev := Event{Kind: env.Kind, Message: env.Message, Username: env.Username, Notice: env.Notice}
	if _, err := ev.Frame(); err != nil {
		return "", Event{}, err
	}
	return env.Room, ev, nil
}
