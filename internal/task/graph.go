package task

import (
	"github.com/goevery/relay/internal/message"
)

// Edge is the first job for a message type and the job its result feeds,
// if any.
type Edge struct {
	Task string
	Then string
}

func (e Edge) Terminal() bool {
	return e.Then == ""
}

// Route is the derivation graph. Keep the switch exhaustive over
// message.Type.
func Route(messageType message.Type) (Edge, bool) {
	switch messageType {
	case message.TypeText:
		return Edge{Task: GenerateImage}, true
	case message.TypeAudio:
		return Edge{Task: WhisperAudio, Then: GenerateImage}, true
	case message.TypeImage:
		return Edge{}, false
	default:
		return Edge{}, false
	}
}

// Plan routes a payload. Empty content never derives anything.
func Plan(payload Payload) (Edge, bool) {
	if payload.Content == "" {
		return Edge{}, false
	}

	return Route(payload.Type)
}
