package handler

import (
	"context"

	"github.com/goevery/relay/internal/ingest"
	"github.com/goevery/relay/internal/message"
)

type MessageRequest map[string]any

type Ingester interface {
	Ingest(ctx context.Context, raw map[string]any, sessionId string, options ingest.Options) (message.Message, error)
	IngestSystem(ctx context.Context, raw map[string]any) (message.Message, error)
}

type MessageHandlerInterface interface {
	Handle(ctx context.Context, req MessageRequest) (message.Message, error)
}

// MessageHandler ingests chat messages. Socket messages use socketOptions
// and REST messages are broadcast to everyone without derivation.
type MessageHandler struct {
	ingester      Ingester
	socketOptions ingest.Options
}

func NewMessageHandler(ingester Ingester, sendConfirmation bool, broadcastToOthers bool) *MessageHandler {
	return &MessageHandler{
		ingester,
		ingest.Options{
			Confirm:   sendConfirmation,
			Broadcast: broadcastToOthers,
			Derive:    true,
		},
	}
}

func (h *MessageHandler) Handle(ctx context.Context, req MessageRequest) (message.Message, error) {
	sessionId, ok := SessionIdFromContext(ctx)
	if ok {
		return h.ingester.Ingest(ctx, req, sessionId, h.socketOptions)
	}

	return h.ingester.Ingest(ctx, req, "", ingest.Options{
		Broadcast:     true,
		IncludeSender: true,
	})
}

type SystemBroadcastHandlerInterface interface {
	Handle(ctx context.Context, req MessageRequest) (message.Message, error)
}

type SystemBroadcastHandler struct {
	ingester Ingester
}

func NewSystemBroadcastHandler(ingester Ingester) *SystemBroadcastHandler {
	return &SystemBroadcastHandler{
		ingester,
	}
}

func (h *SystemBroadcastHandler) Handle(ctx context.Context, req MessageRequest) (message.Message, error) {
	return h.ingester.IngestSystem(ctx, req)
}
