package handler

import (
	"context"

	"github.com/goevery/relay/internal/ierr"
	"github.com/goevery/relay/internal/message"
)

const defaultEventType = "message"

type PublishEventRequest struct {
	EventType string `json:"event_type"`
	Data      any    `json:"data"`
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, data map[string]any) (message.Event, error)
}

type PublishEventHandlerInterface interface {
	Handle(ctx context.Context, req PublishEventRequest) (message.Event, error)
}

type PublishEventHandler struct {
	publisher EventPublisher
}

func NewPublishEventHandler(publisher EventPublisher) *PublishEventHandler {
	return &PublishEventHandler{
		publisher,
	}
}

func (h *PublishEventHandler) Handle(ctx context.Context, req PublishEventRequest) (message.Event, error) {
	eventType := req.EventType
	if eventType == "" {
		eventType = defaultEventType
	}

	data := map[string]any{}
	if req.Data != nil {
		object, ok := req.Data.(map[string]any)
		if !ok {
			return message.Event{}, ierr.InvalidArgument("Event data must be a dictionary")
		}
		data = object
	}

	return h.publisher.PublishEvent(ctx, eventType, data)
}
