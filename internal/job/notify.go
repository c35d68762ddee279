package job

import (
	"context"

	"github.com/goevery/relay/internal/broadcast"
	"github.com/goevery/relay/internal/task"
	"go.uber.org/zap"
)

type NotificationJob struct {
	notifier broadcast.Notifier
	logger   *zap.Logger
}

func NewNotificationJob(
	notifier broadcast.Notifier,
	logger *zap.Logger,
) *NotificationJob {
	return &NotificationJob{
		notifier,
		logger,
	}
}

func (j *NotificationJob) Handle(ctx context.Context, notification task.Notification) error {
	err := j.notifier.Notify(ctx, notification)
	if err != nil {
		return err
	}

	j.logger.Info("notification broadcasted", zap.String("type", notification.Type))

	return nil
}
