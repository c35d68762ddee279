package server

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goevery/relay/internal/pubsub"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubscription struct {
	subscribed chan []string
	messages   chan *redis.Message
	closed     chan struct{}
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{
		subscribed: make(chan []string, 1),
		messages:   make(chan *redis.Message, 1),
		closed:     make(chan struct{}),
	}
}

func (f *fakeSubscription) Receive(context.Context) (interface{}, error) {
	return &redis.Subscription{Kind: "subscribe"}, nil
}

func (f *fakeSubscription) Channel(...redis.ChannelOption) <-chan *redis.Message {
	return f.messages
}

func (f *fakeSubscription) Close() error {
	close(f.closed)
	return nil
}

func TestStreamServer(t *testing.T) {
	subscription := newFakeSubscription()
	streamServer := newStreamServer(zap.NewNop(), func(_ context.Context, channels ...string) streamSubscription {
		subscription.subscribed <- channels
		return subscription
	}, NewOriginChecker(AnyOrigin))

	router := mux.NewRouter()
	streamServer.Register(router.PathPrefix("/api").Subrouter())

	httpServer := httptest.NewServer(router)
	defer httpServer.Close()

	response, err := http.Get(httpServer.URL + "/api/events")
	require.NoError(t, err)
	defer response.Body.Close()

	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "text/event-stream", response.Header.Get("Content-Type"))
	assert.Equal(t, pubsub.StreamTopics, <-subscription.subscribed)

	reader := bufio.NewReader(response.Body)

	t.Run("relays published payloads", func(t *testing.T) {
		subscription.messages <- &redis.Message{Channel: pubsub.TopicEvents, Payload: `{"type":"deploy"}`}

		event, err := reader.ReadString('\n')
		require.NoError(t, err)
		data, err := reader.ReadString('\n')
		require.NoError(t, err)

		assert.Equal(t, "event: events\n", event)
		assert.Equal(t, "data: {\"type\":\"deploy\"}\n", data)
	})

	t.Run("close ends open streams", func(t *testing.T) {
		streamServer.Close()

		ended := make(chan error, 1)
		go func() {
			_, err := io.ReadAll(reader)
			ended <- err
		}()

		select {
		case err := <-ended:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("stream still open after close")
		}

		select {
		case <-subscription.closed:
		case <-time.After(time.Second):
			t.Fatal("subscription not released")
		}
	})
}
