package message

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goevery/relay/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdGenerator_Next(t *testing.T) {
	t.Run("unique under rapid creation", func(t *testing.T) {
		generator := NewIdGenerator()
		seen := make(map[string]struct{}, 10000)

		for range 10000 {
			id := generator.Next()
			_, duplicate := seen[id]
			require.False(t, duplicate, "duplicate id %s", id)
			seen[id] = struct{}{}
		}
	})

	t.Run("unique across goroutines", func(t *testing.T) {
		generator := NewIdGenerator()

		var mu sync.Mutex
		seen := make(map[string]struct{})

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()

				for range 500 {
					id := generator.Next()

					mu.Lock()
					seen[id] = struct{}{}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, seen, 8*500)
	})

	t.Run("time component does not go backwards", func(t *testing.T) {
		clock := time.UnixMilli(1_700_000_000_000)
		generator := NewIdGenerator()
		generator.now = func() time.Time { return clock }

		first := generator.Next()

		clock = clock.Add(-time.Hour)
		second := generator.Next()

		assert.Equal(t, strings.Split(first, "_")[1], strings.Split(second, "_")[1])
		assert.NotEqual(t, first, second)
	})

	t.Run("ids sort by creation time", func(t *testing.T) {
		clock := time.UnixMilli(1_700_000_000_000)
		generator := NewIdGenerator()
		generator.now = func() time.Time { return clock }

		earlier := generator.Next()
		clock = clock.Add(time.Millisecond)
		later := generator.Next()

		assert.Less(t, earlier, later)
	})
}

func TestNew(t *testing.T) {
	t.Run("defaults sender", func(t *testing.T) {
		msg := New(TypeText, "hi", "", "")

		assert.Equal(t, DefaultSender, msg.Sender)
		assert.True(t, strings.HasPrefix(msg.Id, "msg_"))
		assert.False(t, msg.Timestamp.IsZero())
	})

	t.Run("drops format for text", func(t *testing.T) {
		msg := New(TypeText, "hi", "bob", "base64")

		assert.Empty(t, msg.Format)
	})

	t.Run("keeps format for media", func(t *testing.T) {
		msg := New(TypeAudio, "UklGRg==", "bob", "wav")

		assert.Equal(t, "wav", msg.Format)
	})
}

func TestParseType(t *testing.T) {
	for _, s := range []string{"text", "image", "audio"} {
		parsed, ok := ParseType(s)
		assert.True(t, ok)
		assert.Equal(t, Type(s), parsed)
	}

	_, ok := ParseType("video")
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	t.Run("fills content from text", func(t *testing.T) {
		raw := map[string]any{"text": "hello"}

		normalized := Normalize(raw)

		assert.Equal(t, "hello", normalized["content"])
		assert.NotContains(t, raw, "content")
	})

	t.Run("keeps existing content", func(t *testing.T) {
		normalized := Normalize(map[string]any{"content": "a", "text": "b"})

		assert.Equal(t, "a", normalized["content"])
	})

	t.Run("nil input", func(t *testing.T) {
		assert.Nil(t, Normalize(nil))
	})
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		raw    map[string]any
		reason string
	}{
		{"no data", nil, ReasonNoData},
		{"empty content", map[string]any{"content": "", "type": "text"}, ReasonContentRequired},
		{"missing content", map[string]any{"type": "text"}, ReasonContentRequired},
		{"non string content", map[string]any{"content": 42, "type": "text"}, ReasonContentRequired},
		{"invalid type", map[string]any{"content": "hi", "type": "video"}, "Invalid message type: video"},
		{"non string type", map[string]any{"content": "hi", "type": 7}, "Invalid message type: 7"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(tc.raw)

			require.Error(t, err)
			assert.Equal(t, ierr.ErrorCodeInvalidArgument, ierr.CodeOf(err))
			assert.Equal(t, tc.reason, ierr.ReasonOf(err))
		})
	}

	t.Run("valid text", func(t *testing.T) {
		input, err := Validate(map[string]any{"content": "hi", "type": "text"})

		require.NoError(t, err)
		assert.Equal(t, TypeText, input.MessageType())
	})

	t.Run("type defaults to text", func(t *testing.T) {
		input, err := Validate(map[string]any{"content": "hi"})

		require.NoError(t, err)
		assert.Equal(t, TypeText, input.MessageType())
	})

	t.Run("build uses default sender", func(t *testing.T) {
		input, err := Validate(map[string]any{"content": "hi", "type": "audio", "format": "wav"})
		require.NoError(t, err)

		msg := input.Build(SystemSender)

		assert.Equal(t, SystemSender, msg.Sender)
		assert.Equal(t, TypeAudio, msg.Type)
		assert.Equal(t, "wav", msg.Format)
	})
}
