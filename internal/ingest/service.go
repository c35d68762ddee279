package ingest

import (
	"context"
	"fmt"

	"github.com/goevery/relay/internal/message"
	"github.com/goevery/relay/internal/task"
	"go.uber.org/zap"
)

type Broadcaster interface {
	Broadcast(ctx context.Context, msg message.Message, includeSender bool, excludeSessionId string) error
	BroadcastSystem(ctx context.Context, msg message.Message) error
	SendTo(ctx context.Context, sessionId string, msg message.Message) error
}

// Options selects what happens to a message once it is validated.
type Options struct {
	Confirm       bool
	Broadcast     bool
	IncludeSender bool
	Derive        bool
}

type Service struct {
	broadcaster Broadcaster
	enqueuer    task.Enqueuer
	logger      *zap.Logger
}

func NewService(
	broadcaster Broadcaster,
	enqueuer task.Enqueuer,
	logger *zap.Logger,
) *Service {
	return &Service{
		broadcaster,
		enqueuer,
		logger,
	}
}

// Ingest validates raw, creates the message and delivers it. sessionId is
// the originating session, empty for REST callers. Validation failures are
// InvalidArgument errors and nothing is delivered. A failed broadcast is
// returned as a plain error after the message is enqueued for derivation.
// A failed enqueue is logged and does not fail ingestion.
func (s *Service) Ingest(ctx context.Context, raw map[string]any, sessionId string, options Options) (message.Message, error) {
	input, err := message.Validate(message.Normalize(raw))
	if err != nil {
		return message.Message{}, err
	}

	msg := input.Build(message.DefaultSender)

	if options.Confirm && sessionId != "" {
		err := s.broadcaster.SendTo(ctx, sessionId, msg)
		if err != nil {
			s.logger.Warn("failed to confirm message",
				zap.String("messageId", msg.Id),
				zap.String("sessionId", sessionId),
				zap.Error(err))
		}
	}

	var broadcastErr error
	if options.Broadcast {
		broadcastErr = s.broadcaster.Broadcast(ctx, msg, options.IncludeSender, sessionId)
	}

	// peers may already hold the direct push, so derivation still runs
	if options.Derive {
		s.enqueue(ctx, msg, sessionId)
	}

	if broadcastErr != nil {
		return msg, fmt.Errorf("broadcast message %s: %w", msg.Id, broadcastErr)
	}

	s.logger.Info("message ingested",
		zap.String("messageId", msg.Id),
		zap.String("sender", msg.Sender),
		zap.String("type", string(msg.Type)))

	return msg, nil
}

// IngestSystem validates raw and broadcasts it as a system message.
func (s *Service) IngestSystem(ctx context.Context, raw map[string]any) (message.Message, error) {
	input, err := message.Validate(raw)
	if err != nil {
		return message.Message{}, err
	}

	msg := input.Build(message.SystemSender)

	err = s.broadcaster.BroadcastSystem(ctx, msg)
	if err != nil {
		return msg, fmt.Errorf("broadcast system message %s: %w", msg.Id, err)
	}

	return msg, nil
}

func (s *Service) enqueue(ctx context.Context, msg message.Message, sessionId string) {
	err := s.enqueuer.Enqueue(ctx, task.ProcessMessage, task.NewPayload(msg, sessionId))
	if err != nil {
		s.logger.Warn("failed to enqueue message processing",
			zap.String("messageId", msg.Id),
			zap.Error(err))
		return
	}

	s.logger.Debug("message processing enqueued", zap.String("messageId", msg.Id))
}
