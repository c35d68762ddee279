package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

const metadataTask = "task"

type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any) error
}

type Orchestrator struct {
	publisher message.Publisher
	logger    *zap.Logger
}

func NewOrchestrator(
	publisher message.Publisher,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		publisher,
		logger,
	}
}

// Enqueue hands the payload to the queue and returns. The job runs later on
// whichever worker picks it up.
func (o *Orchestrator) Enqueue(ctx context.Context, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", name, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	msg.Metadata.Set(metadataTask, name)

	err = o.publisher.Publish(name, msg)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", name, err)
	}

	o.logger.Debug("task enqueued",
		zap.String("task", name),
		zap.String("jobId", msg.UUID))

	return nil
}
