package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewServerApp(t *testing.T) {
	t.Run("embedded worker runs without the emit relay", func(t *testing.T) {
		app, err := NewServerApp(zap.NewNop(), Settings{
			WSPath:            "/ws/chat/",
			RedisURL:          "redis://localhost:6379/0",
			ImageGeneratorURL: "http://localhost:9000",
			AllowedOrigin:     "*",
			WorkerConcurrency: 4,
		})
		require.NoError(t, err)
		defer app.close()

		assert.NotNil(t, app.worker)
		assert.NotNil(t, app.registry)
		assert.Nil(t, app.relay)
	})

	t.Run("invalid redis url", func(t *testing.T) {
		_, err := NewServerApp(zap.NewNop(), Settings{RedisURL: "not-a-url"})

		assert.Error(t, err)
	})
}

func TestNewWorkerApp(t *testing.T) {
	_, err := NewWorkerApp(zap.NewNop(), Settings{RedisURL: "redis://localhost:6379/0"})

	assert.ErrorContains(t, err, "AMQP_URL")
}
