package task

import (
	"github.com/goevery/relay/internal/message"
)

// Payload is the job input. TargetSessionId is the session that receives
// the final result of a chain and is fixed at enqueue time.
type Payload struct {
	message.Message
	TargetSessionId string `json:"targetSessionId"`
}

func NewPayload(msg message.Message, targetSessionId string) Payload {
	return Payload{
		Message:         msg,
		TargetSessionId: targetSessionId,
	}
}

// WithContent derives the payload for the next job in a chain.
func (p Payload) WithContent(content string) Payload {
	p.Content = content
	return p
}

type Notification struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}
