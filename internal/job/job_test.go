package job

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/goevery/relay/internal/broadcast"
	"github.com/goevery/relay/internal/message"
	"github.com/goevery/relay/internal/task"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, name string, payload any) error {
	args := m.Called(ctx, name, payload)
	return args.Error(0)
}

type MockEmitter struct {
	mock.Mock
}

func (m *MockEmitter) EmitTo(ctx context.Context, sessionId string, event string, payload any) error {
	args := m.Called(ctx, sessionId, event, payload)
	return args.Error(0)
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, request GenerateRequest) ([]string, error) {
	args := m.Called(ctx, request)
	images, _ := args.Get(0).([]string)
	return images, args.Error(1)
}

type fakeTranscriber struct {
	segments []string
	err      error
	path     string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path string) ([]string, error) {
	f.path = path
	return f.segments, f.err
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, notification any) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

func pngBase64(t *testing.T) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	var buffer bytes.Buffer
	require.NoError(t, png.Encode(&buffer, img))

	return base64.StdEncoding.EncodeToString(buffer.Bytes())
}

func TestProcessor(t *testing.T) {
	testCases := []struct {
		name        string
		messageType message.Type
		content     string
		expected    string
	}{
		{"text goes to image generation", message.TypeText, "a cat", task.GenerateImage},
		{"audio goes to transcription", message.TypeAudio, "UklGRg==", task.WhisperAudio},
		{"image is not derived", message.TypeImage, "iVBORw0K", ""},
		{"empty content is not derived", message.TypeText, "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			enqueuer := &MockEnqueuer{}
			payload := task.NewPayload(message.Message{Id: "msg_1", Type: tc.messageType, Content: tc.content}, "sid-1")
			if tc.expected != "" {
				enqueuer.On("Enqueue", mock.Anything, tc.expected, payload).Return(nil).Once()
			}

			err := NewProcessor(enqueuer, zap.NewNop()).Handle(context.Background(), payload)

			require.NoError(t, err)
			enqueuer.AssertExpectations(t)
			if tc.expected == "" {
				enqueuer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestTranscriptionJob(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte("RIFF\x24\x00\x00\x00WAVEfmt "))
	msg := message.New(message.TypeAudio, audio, "bob", "wav")
	payload := task.NewPayload(msg, "sid-7")

	t.Run("chains image generation with the transcription", func(t *testing.T) {
		transcriber := &fakeTranscriber{segments: []string{" hello world "}}
		enqueuer := &MockEnqueuer{}
		enqueuer.On("Enqueue", mock.Anything, task.GenerateImage, mock.MatchedBy(func(next task.Payload) bool {
			return next.Content == "hello world" &&
				next.TargetSessionId == "sid-7" &&
				next.Id == msg.Id
		})).Return(nil).Once()

		err := NewTranscriptionJob(transcriber, enqueuer, zap.NewNop()).Handle(context.Background(), payload)

		require.NoError(t, err)
		enqueuer.AssertExpectations(t)
		assert.NoFileExists(t, transcriber.path)
	})

	failures := []struct {
		name        string
		content     string
		transcriber *fakeTranscriber
		expected    error
	}{
		{"empty content", "", &fakeTranscriber{}, ErrEmptyAudio},
		{"model error", audio, &fakeTranscriber{err: errors.New("model crashed")}, nil},
		{"empty transcription", audio, &fakeTranscriber{segments: []string{"  ", ""}}, ErrEmptyTranscription},
		{"bad base64", "%%%", &fakeTranscriber{}, nil},
	}

	for _, tc := range failures {
		t.Run(tc.name, func(t *testing.T) {
			enqueuer := &MockEnqueuer{}

			err := NewTranscriptionJob(tc.transcriber, enqueuer, zap.NewNop()).
				Handle(context.Background(), payload.WithContent(tc.content))

			require.Error(t, err)
			if tc.expected != nil {
				assert.ErrorIs(t, err, tc.expected)
			}
			enqueuer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestJoinSegments(t *testing.T) {
	assert.Equal(t, "hello\n\nworld", JoinSegments([]string{" hello", "", "world  "}))
	assert.Equal(t, "", JoinSegments(nil))
}

func TestImageJob(t *testing.T) {
	msg := message.New(message.TypeText, `{"text":"a red dot"}`, "alice", "")
	payload := task.NewPayload(msg, "sid-3")

	t.Run("delivers only to the target session", func(t *testing.T) {
		generator := &MockGenerator{}
		generator.On("Generate", mock.Anything, NewGenerateRequest("a red dot")).Return([]string{pngBase64(t)}, nil).Once()

		emitter := &MockEmitter{}
		emitter.On("EmitTo", mock.Anything, "sid-3", broadcast.EventImage, mock.MatchedBy(func(delivery ImageDelivery) bool {
			data, err := base64.StdEncoding.DecodeString(delivery.ImageData)
			return err == nil &&
				bytes.HasPrefix(data, []byte{0xFF, 0xD8}) &&
				delivery.Status == "success" &&
				delivery.Type == "image" &&
				delivery.MessageId == msg.Id &&
				delivery.Prompt == "a red dot" &&
				delivery.Sender == ImageSender
		})).Return(nil).Once()

		result, err := NewImageJob(generator, emitter, zap.NewNop()).Run(context.Background(), payload)

		require.NoError(t, err)
		assert.Equal(t, "a red dot", result.Prompt)
		assert.Len(t, result.Images, 1)
		emitter.AssertExpectations(t)
		emitter.AssertNumberOfCalls(t, "EmitTo", 1)
	})

	t.Run("no images", func(t *testing.T) {
		generator := &MockGenerator{}
		generator.On("Generate", mock.Anything, mock.Anything).Return([]string{}, nil).Once()
		emitter := &MockEmitter{}

		_, err := NewImageJob(generator, emitter, zap.NewNop()).Run(context.Background(), payload)

		assert.ErrorIs(t, err, ErrNoImages)
		emitter.AssertNotCalled(t, "EmitTo", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("delivery failure does not fail the job", func(t *testing.T) {
		generator := &MockGenerator{}
		generator.On("Generate", mock.Anything, mock.Anything).Return([]string{pngBase64(t)}, nil).Once()
		emitter := &MockEmitter{}
		emitter.On("EmitTo", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("gone")).Once()

		_, err := NewImageJob(generator, emitter, zap.NewNop()).Run(context.Background(), payload)

		assert.NoError(t, err)
	})
}

func TestHTTPGenerator(t *testing.T) {
	t.Run("posts the prompt with the api key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/generate", r.URL.Path)
			assert.Equal(t, "secret", r.Header.Get("x-api-key"))

			var request GenerateRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&request))
			assert.Equal(t, NewGenerateRequest("a cat"), request)

			_ = json.NewEncoder(w).Encode(map[string]any{"images": []string{"abc"}})
		}))
		defer server.Close()

		images, err := NewHTTPGenerator(server.URL, "secret", zap.NewNop()).
			Generate(context.Background(), NewGenerateRequest("a cat"))

		require.NoError(t, err)
		assert.Equal(t, []string{"abc"}, images)
	})

	t.Run("non-200 fails the job without follow-up", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		emitter := &MockEmitter{}
		job := NewImageJob(NewHTTPGenerator(server.URL, "secret", zap.NewNop()), emitter, zap.NewNop())

		_, err := job.Run(context.Background(), task.NewPayload(message.New(message.TypeText, "a cat", "", ""), "sid"))

		assert.ErrorIs(t, err, ErrUpstreamStatus)
		emitter.AssertNotCalled(t, "EmitTo", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestPromptOf(t *testing.T) {
	assert.Equal(t, "plain", promptOf("plain"))
	assert.Equal(t, "inner", promptOf(`{"text":"inner"}`))
	assert.Equal(t, `{"other":1}`, promptOf(`{"other":1}`))
	assert.Equal(t, "42", promptOf("42"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 80))

	truncated := truncate("日本語のプロンプト", 3)

	assert.Equal(t, "日本語", truncated)
	assert.True(t, utf8.ValidString(truncated))
}

func TestHTTPGenerator_CircuitBreaker(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	generator := NewHTTPGenerator(upstream.URL, "key", zap.NewNop())

	// the default breaker trips after more than five consecutive failures
	for range 6 {
		_, err := generator.Generate(context.Background(), NewGenerateRequest("a cat"))
		assert.ErrorIs(t, err, ErrUpstreamStatus)
	}

	_, err := generator.Generate(context.Background(), NewGenerateRequest("a cat"))

	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(6), calls.Load())
	assert.Greater(t, breakerOpenTimeout, generateTimeout)
}

func TestNotificationJob(t *testing.T) {
	notification := task.Notification{Type: "upgrade", Data: map[string]any{"at": "now"}}
	notifier := &MockNotifier{}
	notifier.On("Notify", mock.Anything, notification).Return(nil).Once()

	err := NewNotificationJob(notifier, zap.NewNop()).Handle(context.Background(), notification)

	require.NoError(t, err)
	notifier.AssertExpectations(t)
}
