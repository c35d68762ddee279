package message

import (
	"time"
)

type Type string

const (
	TypeText  Type = "text"
	TypeImage Type = "image"
	TypeAudio Type = "audio"
)

// ParseType is the only place a wire string becomes a Type.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeText:
		return TypeText, true
	case TypeImage:
		return TypeImage, true
	case TypeAudio:
		return TypeAudio, true
	default:
		return "", false
	}
}

const (
	DefaultSender = "anonymous"
	SystemSender  = "system"
)

// Message is immutable once created; copy it by value.
type Message struct {
	Id        string    `json:"id"`
	Type      Type      `json:"type"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Format    string    `json:"format,omitempty"`
}

var defaultIdGenerator = NewIdGenerator()

// New never fails for validated input. An empty sender becomes DefaultSender,
// and format is dropped for text messages.
func New(messageType Type, content string, sender string, format string) Message {
	if sender == "" {
		sender = DefaultSender
	}

	if messageType == TypeText {
		format = ""
	}

	return Message{
		Id:        defaultIdGenerator.Next(),
		Type:      messageType,
		Content:   content,
		Sender:    sender,
		Timestamp: time.Now().UTC(),
		Format:    format,
	}
}

// Event is a notification for stream subscribers, distinct from chat messages.
type Event struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

func NewEvent(eventType string, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}

	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
