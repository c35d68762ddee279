package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goevery/relay/internal/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EmitChannel carries session-addressed events from workers to the server
// process that owns the session.
const EmitChannel = "relay:emit"

// Emitter pushes one event to one live session.
type Emitter interface {
	EmitTo(ctx context.Context, sessionId string, event string, payload any) error
}

// Envelope is what travels on EmitChannel. An empty SessionId addresses
// every session.
type Envelope struct {
	SessionId string          `json:"sid"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
}

// RedisEmitter is used by worker processes that do not hold any session.
// A nil error only means the envelope reached Redis.
type RedisEmitter struct {
	publisher Publisher
}

func NewRedisEmitter(publisher Publisher) *RedisEmitter {
	return &RedisEmitter{
		publisher,
	}
}

func (e *RedisEmitter) EmitTo(ctx context.Context, sessionId string, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	return e.publisher.Publish(ctx, EmitChannel, Envelope{
		SessionId: sessionId,
		Event:     event,
		Payload:   data,
	})
}

// EmitAll reaches every session on every server process.
func (e *RedisEmitter) EmitAll(ctx context.Context, event string, payload any) error {
	return e.EmitTo(ctx, "", event, payload)
}

type redisSubscribeClient interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Relay forwards envelopes from EmitChannel to sessions held by the local
// registry. Envelopes for sessions owned by other instances are ignored.
type Relay struct {
	client   redisSubscribeClient
	registry session.Registry
	logger   *zap.Logger
}

func NewRelay(client *redis.Client, registry session.Registry, logger *zap.Logger) *Relay {
	return &Relay{
		client:   client,
		registry: registry,
		logger:   logger,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	subscription := r.client.Subscribe(ctx, EmitChannel)
	defer subscription.Close()

	if _, err := subscription.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", EmitChannel, err)
	}

	r.logger.Info("emit relay started", zap.String("channel", EmitChannel))

	messages := subscription.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("emit relay subscription closed")
			}

			r.Deliver(ctx, []byte(msg.Payload))
		}
	}
}

func (r *Relay) Deliver(ctx context.Context, data []byte) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		r.logger.Warn("dropping malformed emit envelope", zap.Error(err))
		return
	}

	if envelope.SessionId == "" {
		r.deliverAll(ctx, envelope)
		return
	}

	err := r.registry.EmitTo(ctx, envelope.SessionId, envelope.Event, envelope.Payload)
	if errors.Is(err, session.ErrSessionNotFound) {
		r.logger.Debug("emit target not on this instance",
			zap.String("sessionId", envelope.SessionId),
			zap.String("event", envelope.Event))
		return
	}

	if err != nil {
		r.logger.Warn("failed to relay emit",
			zap.String("sessionId", envelope.SessionId),
			zap.String("event", envelope.Event),
			zap.Error(err))
	}
}

func (r *Relay) deliverAll(ctx context.Context, envelope Envelope) {
	for _, connection := range r.registry.Snapshot() {
		err := connection.Send(ctx, envelope.Event, envelope.Payload)
		if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			r.logger.Warn("failed to relay emit",
				zap.String("sessionId", connection.Id()),
				zap.String("event", envelope.Event),
				zap.Error(err))
		}
	}
}
