package message

import (
	"errors"
	"fmt"
	"maps"

	"github.com/go-playground/validator/v10"
	"github.com/goevery/relay/internal/ierr"
)

var validate = validator.New()

const (
	ReasonNoData          = "No data provided"
	ReasonContentRequired = "Content is required"
)

// Input is an ingress message that passed validation.
type Input struct {
	Content string `validate:"required"`
	Type    string `validate:"required,oneof=text image audio"`
	Sender  string
	Format  string
}

func (in Input) MessageType() Type {
	t, _ := ParseType(in.Type)

	return t
}

// Build creates the Message for a validated input, falling back to
// defaultSender when the client did not name one.
func (in Input) Build(defaultSender string) Message {
	sender := in.Sender
	if sender == "" {
		sender = defaultSender
	}

	return New(in.MessageType(), in.Content, sender, in.Format)
}

// Normalize copies the alternate "text" field into "content" when content is
// absent or empty. The input map is left untouched.
func Normalize(raw map[string]any) map[string]any {
	if raw == nil {
		return nil
	}

	normalized := maps.Clone(raw)

	if content, _ := normalized["content"].(string); content != "" {
		return normalized
	}

	if text, ok := normalized["text"].(string); ok && text != "" {
		normalized["content"] = text
	}

	return normalized
}

// Validate checks a raw ingress object. The returned error is an
// ierr.Error with code InvalidArgument whose message is the human-readable
// rejection reason.
func Validate(raw map[string]any) (Input, error) {
	if len(raw) == 0 {
		return Input{}, ierr.InvalidArgument(ReasonNoData)
	}

	input := Input{
		Type: string(TypeText),
	}

	if content, ok := raw["content"].(string); ok {
		input.Content = content
	}

	if rawType, ok := raw["type"]; ok && rawType != nil {
		typeString, ok := rawType.(string)
		if !ok {
			return Input{}, ierr.InvalidArgument(fmt.Sprintf("Invalid message type: %v", rawType))
		}
		input.Type = typeString
	}

	if sender, ok := raw["sender"].(string); ok {
		input.Sender = sender
	}

	if format, ok := raw["format"].(string); ok {
		input.Format = format
	}

	if err := validate.Struct(input); err != nil {
		return Input{}, rejection(input, err)
	}

	return input, nil
}

func rejection(input Input, err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return ierr.New(ierr.ErrorCodeInternal, err)
	}

	// Content is reported before type, in struct field order.
	for _, fieldErr := range validationErrors {
		switch fieldErr.Field() {
		case "Content":
			return ierr.InvalidArgument(ReasonContentRequired)
		case "Type":
			return ierr.InvalidArgument(fmt.Sprintf("Invalid message type: %s", input.Type))
		}
	}

	return ierr.InvalidArgument(validationErrors.Error())
}
