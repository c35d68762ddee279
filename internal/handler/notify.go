package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/goevery/relay/internal/ierr"
	"github.com/goevery/relay/internal/task"
)

var validate = validator.New()

type NotificationRequest struct {
	Type string         `json:"type" validate:"required"`
	Data map[string]any `json:"data"`
}

type NotificationResponse struct {
	Queued bool `json:"queued"`
}

type NotificationHandlerInterface interface {
	Handle(ctx context.Context, req NotificationRequest) (NotificationResponse, error)
}

// NotificationHandler schedules a notification for every session through
// the job queue.
type NotificationHandler struct {
	enqueuer task.Enqueuer
}

func NewNotificationHandler(enqueuer task.Enqueuer) *NotificationHandler {
	return &NotificationHandler{
		enqueuer,
	}
}

func (h *NotificationHandler) Handle(ctx context.Context, req NotificationRequest) (NotificationResponse, error) {
	if err := validate.Struct(req); err != nil {
		return NotificationResponse{}, ierr.InvalidArgument("Notification type is required")
	}

	if req.Data == nil {
		req.Data = map[string]any{}
	}

	err := h.enqueuer.Enqueue(ctx, task.BroadcastNotification, task.Notification{
		Type: req.Type,
		Data: req.Data,
	})
	if err != nil {
		return NotificationResponse{}, err
	}

	return NotificationResponse{
		Queued: true,
	}, nil
}
