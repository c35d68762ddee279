package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goevery/relay/internal/pubsub"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keepAlivePeriod = 15 * time.Second

// streamSubscription is the part of *redis.PubSub a stream uses.
type streamSubscription interface {
	Receive(ctx context.Context) (interface{}, error)
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

type subscribeFunc func(ctx context.Context, channels ...string) streamSubscription

// StreamServer relays every publish-channel topic to Server-Sent-Events
// clients. Each client holds its own Redis subscription.
type StreamServer struct {
	logger        *zap.Logger
	subscribe     subscribeFunc
	originChecker *OriginChecker

	done      chan struct{}
	closeOnce sync.Once
}

func NewStreamServer(
	logger *zap.Logger,
	client *redis.Client,
	originChecker *OriginChecker,
) *StreamServer {
	return newStreamServer(logger, func(ctx context.Context, channels ...string) streamSubscription {
		return client.Subscribe(ctx, channels...)
	}, originChecker)
}

func newStreamServer(logger *zap.Logger, subscribe subscribeFunc, originChecker *OriginChecker) *StreamServer {
	return &StreamServer{
		logger:        logger,
		subscribe:     subscribe,
		originChecker: originChecker,
		done:          make(chan struct{}),
	}
}

// Close ends every open stream. Register it with
// http.Server.RegisterOnShutdown; Shutdown does not cancel open streams.
func (s *StreamServer) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *StreamServer) Register(router *mux.Router) {
	router.HandleFunc("/events", s.stream).Methods(http.MethodGet)
}

func (s *StreamServer) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()

	subscription := s.subscribe(ctx, pubsub.StreamTopics...)
	defer subscription.Close()

	if _, err := subscription.Receive(ctx); err != nil {
		s.logger.Error("failed to subscribe to stream topics", zap.Error(err))
		http.Error(w, `{"error":"Stream unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", s.originChecker.AllowedOrigin())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Debug("stream client connected")

	keepAlive := time.NewTicker(keepAlivePeriod)
	defer keepAlive.Stop()

	messages := subscription.Channel()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("stream client disconnected")
			return
		case <-s.done:
			s.logger.Debug("stream closed by server shutdown")
			return
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
		case msg, ok := <-messages:
			if !ok {
				return
			}

			if err := writeEvent(w, msg.Channel, msg.Payload); err != nil {
				return
			}
		}

		flusher.Flush()
	}
}

// writeEvent writes one SSE frame. Payloads are single-line JSON.
func writeEvent(w io.Writer, event string, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)

	return err
}
