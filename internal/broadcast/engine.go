package broadcast

import (
	"context"
	"errors"
	"fmt"

	"github.com/goevery/relay/internal/message"
	"github.com/goevery/relay/internal/pubsub"
	"github.com/goevery/relay/internal/session"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Direct-push event names.
const (
	EventConnected    = "connected"
	EventMessage      = "message"
	EventBroadcast    = "broadcast"
	EventNotification = "notification"
	EventError        = "error"
	EventImage        = "image"
	EventHeartbeat    = "heartbeat"
)

// Engine delivers over two independent paths: a direct push to every live
// session and a publish for stream subscribers. The two are not ordered
// relative to each other, and a client that is both a session and a stream
// subscriber sees the same message twice.
type Engine struct {
	registry  session.Registry
	publisher pubsub.Publisher
	logger    *zap.Logger
}

func NewEngine(
	registry session.Registry,
	publisher pubsub.Publisher,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		registry,
		publisher,
		logger,
	}
}

// Broadcast pushes msg to the sessions present at call time, skipping
// excludeSessionId unless includeSender is set, and publishes it on the
// messages topic. Only the publish outcome is returned; per-session push
// failures are logged.
func (e *Engine) Broadcast(ctx context.Context, msg message.Message, includeSender bool, excludeSessionId string) error {
	exclude := ""
	if !includeSender {
		exclude = excludeSessionId
	}

	e.pushAll(ctx, EventMessage, msg, exclude)

	err := e.publish(ctx, pubsub.TopicMessages, msg)
	if err != nil {
		return err
	}

	e.logger.Info("message broadcasted", zap.String("messageId", msg.Id))

	return nil
}

// BroadcastSystem delivers a system message to every session.
func (e *Engine) BroadcastSystem(ctx context.Context, msg message.Message) error {
	e.pushAll(ctx, EventBroadcast, msg, "")

	err := e.publish(ctx, pubsub.TopicBroadcasts, msg)
	if err != nil {
		return err
	}

	e.logger.Info("system message broadcasted", zap.String("messageId", msg.Id))

	return nil
}

// SendTo pushes msg to a single session as a confirmation.
func (e *Engine) SendTo(ctx context.Context, sessionId string, msg message.Message) error {
	err := e.registry.EmitTo(ctx, sessionId, EventMessage, msg)
	if err != nil {
		return fmt.Errorf("send message %s to %s: %w", msg.Id, sessionId, err)
	}

	return nil
}

// PublishEvent only reaches stream subscribers.
func (e *Engine) PublishEvent(ctx context.Context, eventType string, data map[string]any) (message.Event, error) {
	event := message.NewEvent(eventType, data)

	err := e.publish(ctx, pubsub.TopicEvents, event)
	if err != nil {
		return message.Event{}, err
	}

	e.logger.Info("event published", zap.String("eventType", eventType))

	return event, nil
}

func (e *Engine) Notify(ctx context.Context, notification any) error {
	e.pushAll(ctx, EventNotification, notification, "")

	return e.publish(ctx, pubsub.TopicNotifications, notification)
}

func (e *Engine) pushAll(ctx context.Context, event string, payload any, excludeSessionId string) {
	connections := lo.Filter(e.registry.Snapshot(), func(connection session.Connection, _ int) bool {
		return excludeSessionId == "" || connection.Id() != excludeSessionId
	})

	for _, connection := range connections {
		err := connection.Send(ctx, event, payload)
		if err == nil {
			continue
		}

		if errors.Is(err, session.ErrSessionNotFound) {
			e.logger.Debug("session left during fan-out",
				zap.String("sessionId", connection.Id()),
				zap.String("event", event))
			continue
		}

		e.logger.Warn("failed to push to session",
			zap.String("sessionId", connection.Id()),
			zap.String("event", event),
			zap.Error(err))
	}
}

func (e *Engine) publish(ctx context.Context, topic string, payload any) error {
	err := e.publisher.Publish(ctx, topic, payload)
	if err != nil {
		e.logger.Error("failed to publish",
			zap.String("topic", topic),
			zap.Error(err))

		return err
	}

	return nil
}
