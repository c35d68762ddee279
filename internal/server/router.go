package server

import (
	"context"
	"fmt"

	"github.com/goevery/relay/internal/broadcast"
	"github.com/goevery/relay/internal/handler"
	"github.com/goevery/relay/internal/ierr"
	"go.uber.org/zap"
)

// Router dispatches inbound socket frames to handlers and builds the reply
// frame, if any.
type Router struct {
	logger *zap.Logger

	heartbeatHandler handler.HeartbeatHandlerInterface
	messageHandler   handler.MessageHandlerInterface
}

func NewRouter(
	logger *zap.Logger,
	heartbeatHandler handler.HeartbeatHandlerInterface,
	messageHandler handler.MessageHandlerInterface,
) *Router {
	return &Router{
		logger,
		heartbeatHandler,
		messageHandler,
	}
}

func (r *Router) RouteFrame(ctx context.Context, frame handler.Frame) *handler.Frame {
	response, err := r.Handle(ctx, frame)
	if err != nil {
		return r.errorFrame(err)
	}

	if response == nil {
		return nil
	}

	reply, err := handler.NewFrame(frame.Event, response)
	if err != nil {
		return r.errorFrame(err)
	}

	return &reply
}

// Handle returns the reply payload. Accepted messages have no reply; the
// sender sees them through confirmation or broadcast.
func (r *Router) Handle(ctx context.Context, frame handler.Frame) (any, error) {
	switch frame.Event {
	case broadcast.EventHeartbeat:
		return r.heartbeatHandler.Handle(), nil
	case broadcast.EventMessage:
		var req handler.MessageRequest
		if err := frame.DecodeData(&req); err != nil {
			return nil, err
		}

		_, err := r.messageHandler.Handle(ctx, req)

		return nil, err
	default:
		return nil, ierr.New(ierr.ErrorCodeNotFound, fmt.Errorf("unknown event: %s", frame.Event))
	}
}

func (r *Router) errorFrame(err error) *handler.Frame {
	if ierr.CodeOf(err) == ierr.ErrorCodeInternal {
		r.logger.Error("error in frame handler", zap.Error(err))
	}

	frame, marshalErr := handler.NewFrame(broadcast.EventError, handler.NewErrorResponse(err))
	if marshalErr != nil {
		r.logger.Error("failed to build error frame", zap.Error(marshalErr))
		return nil
	}

	return &frame
}
