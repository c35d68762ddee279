package handler

import (
	"encoding/json"
	"fmt"

	"github.com/goevery/relay/internal/ierr"
)

// Frame is the socket envelope in both directions.
type Frame struct {
	Event string           `json:"event"`
	Data  *json.RawMessage `json:"data,omitempty"`
}

func NewFrame(event string, data any) (Frame, error) {
	rawJson, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s frame: %w", event, err)
	}

	payload := json.RawMessage(rawJson)

	return Frame{
		Event: event,
		Data:  &payload,
	}, nil
}

type ErrorResponse struct {
	Message string `json:"message"`
}

// NewErrorResponse never exposes the cause of a non ierr.Error.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{
		Message: ierr.ReasonOf(err),
	}
}

// DecodeData reads a frame payload into v. A missing payload is reported as
// missing data.
func (f Frame) DecodeData(v any) error {
	if f.Data == nil || string(*f.Data) == "null" {
		return ierr.InvalidArgument("No data provided")
	}

	if err := json.Unmarshal(*f.Data, v); err != nil {
		return ierr.InvalidArgument("Invalid message format")
	}

	return nil
}
