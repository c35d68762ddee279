package job

import (
	"context"

	"github.com/goevery/relay/internal/task"
	"go.uber.org/zap"
)

// Processor is the entry job: it picks the first derivation for a message.
type Processor struct {
	enqueuer task.Enqueuer
	logger   *zap.Logger
}

func NewProcessor(
	enqueuer task.Enqueuer,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		enqueuer,
		logger,
	}
}

func (p *Processor) Handle(ctx context.Context, payload task.Payload) error {
	edge, ok := task.Plan(payload)
	if !ok {
		p.logger.Debug("no derivation for message",
			zap.String("messageId", payload.Id),
			zap.String("type", string(payload.Type)))
		return nil
	}

	return p.enqueuer.Enqueue(ctx, edge.Task, payload)
}
