package broadcast

import (
	"context"

	"github.com/goevery/relay/internal/pubsub"
	"go.uber.org/zap"
)

type Notifier interface {
	Notify(ctx context.Context, notification any) error
}

type allEmitter interface {
	EmitAll(ctx context.Context, event string, payload any) error
}

// RemoteNotifier is the Notifier for processes that hold no sessions. The
// push goes through the emit relay of every server.
type RemoteNotifier struct {
	emitter   allEmitter
	publisher pubsub.Publisher
	logger    *zap.Logger
}

func NewRemoteNotifier(
	emitter allEmitter,
	publisher pubsub.Publisher,
	logger *zap.Logger,
) *RemoteNotifier {
	return &RemoteNotifier{
		emitter,
		publisher,
		logger,
	}
}

func (n *RemoteNotifier) Notify(ctx context.Context, notification any) error {
	err := n.emitter.EmitAll(ctx, EventNotification, notification)
	if err != nil {
		n.logger.Warn("failed to relay notification", zap.Error(err))
	}

	return n.publisher.Publish(ctx, pubsub.TopicNotifications, notification)
}
