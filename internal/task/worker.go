package task

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.uber.org/zap"
)

// Handler runs one job. A returned error is terminal for that job.
type Handler[T any] func(ctx context.Context, payload T) error

// Bind adapts a typed handler to the router. Every message is acknowledged:
// undecodable payloads, handler errors and panics are logged and dropped.
func Bind[T any](name string, logger *zap.Logger, fn Handler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("task panicked",
					zap.String("task", name),
					zap.String("jobId", msg.UUID),
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())))
				err = nil
			}
		}()

		var payload T
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			logger.Error("failed to decode task payload",
				zap.String("task", name),
				zap.String("jobId", msg.UUID),
				zap.Error(err))
			return nil
		}

		if err := fn(msg.Context(), payload); err != nil {
			logger.Error("task failed",
				zap.String("task", name),
				zap.String("jobId", msg.UUID),
				zap.String("messageId", messageIdOf(payload)),
				zap.Error(err))
		}

		return nil
	}
}

func messageIdOf(payload any) string {
	if p, ok := payload.(Payload); ok {
		return p.Id
	}

	return ""
}

// Worker consumes task topics on a watermill router.
type Worker struct {
	router      *message.Router
	subscriber  message.Subscriber
	concurrency int
	logger      *zap.Logger
}

// NewWorker registers concurrency consumers per task when the queue is
// shared, one otherwise.
func NewWorker(queue *Queue, concurrency int, logger *zap.Logger) (*Worker, error) {
	router, err := message.NewRouter(message.RouterConfig{}, NewLoggerAdapter(logger))
	if err != nil {
		return nil, fmt.Errorf("create task router: %w", err)
	}

	router.AddMiddleware(
		middleware.CorrelationID,
		loggingMiddleware(logger),
	)

	if !queue.Shared || concurrency < 1 {
		concurrency = 1
	}

	return &Worker{
		router,
		queue.Subscriber,
		concurrency,
		logger,
	}, nil
}

func (w *Worker) Handle(name string, handler message.NoPublishHandlerFunc) {
	for i := range w.concurrency {
		w.router.AddConsumerHandler(fmt.Sprintf("%s-%d", name, i), name, w.subscriber, handler)
	}
}

// Run blocks until ctx is cancelled or the router stops.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("task worker starting", zap.Int("concurrency", w.concurrency))

	return w.router.Run(ctx)
}

func (w *Worker) Running() chan struct{} {
	return w.router.Running()
}

func (w *Worker) Close() error {
	return w.router.Close()
}

func loggingMiddleware(logger *zap.Logger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			start := time.Now()
			msgs, err := h(msg)

			logger.Debug("task handled",
				zap.String("task", msg.Metadata.Get(metadataTask)),
				zap.String("jobId", msg.UUID),
				zap.Duration("duration", time.Since(start)),
				zap.Bool("success", err == nil))

			return msgs, err
		}
	}
}
