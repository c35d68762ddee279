package job

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/goevery/relay/internal/task"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const defaultAudioExtension = ".wav"

var (
	ErrEmptyAudio         = errors.New("no audio content")
	ErrEmptyTranscription = errors.New("transcription is empty")
)

// Transcriber turns an audio file into ordered text segments.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) ([]string, error)
}

type TranscriptionJob struct {
	transcriber Transcriber
	enqueuer    task.Enqueuer
	logger      *zap.Logger
}

func NewTranscriptionJob(
	transcriber Transcriber,
	enqueuer task.Enqueuer,
	logger *zap.Logger,
) *TranscriptionJob {
	return &TranscriptionJob{
		transcriber,
		enqueuer,
		logger,
	}
}

// Handle transcribes the audio and enqueues the next job of the chain with
// the transcription as content. The model call has no timeout.
func (j *TranscriptionJob) Handle(ctx context.Context, payload task.Payload) error {
	text, err := j.transcribe(ctx, payload.Content)
	if err != nil {
		return fmt.Errorf("transcribe %s: %w", payload.Id, err)
	}

	j.logger.Info("transcription complete",
		zap.String("messageId", payload.Id),
		zap.Int("length", len(text)))

	edge, ok := task.Route(payload.Type)
	if !ok || edge.Terminal() {
		return nil
	}

	return j.enqueuer.Enqueue(ctx, edge.Then, payload.WithContent(text))
}

func (j *TranscriptionJob) transcribe(ctx context.Context, content string) (string, error) {
	if content == "" {
		return "", ErrEmptyAudio
	}

	audio, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", fmt.Errorf("decode base64 audio: %w", err)
	}

	extension := mimetype.Detect(audio).Extension()
	if extension == "" {
		extension = defaultAudioExtension
	}

	file, err := os.CreateTemp("", "relay-audio-*"+extension)
	if err != nil {
		return "", fmt.Errorf("create temp audio file: %w", err)
	}
	defer os.Remove(file.Name())

	_, err = file.Write(audio)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("write temp audio file: %w", err)
	}

	segments, err := j.transcriber.Transcribe(ctx, file.Name())
	if err != nil {
		return "", err
	}

	text := JoinSegments(segments)
	if text == "" {
		return "", ErrEmptyTranscription
	}

	return text, nil
}

// JoinSegments trims each segment and separates them with a blank line.
func JoinSegments(segments []string) string {
	trimmed := lo.FilterMap(segments, func(segment string, _ int) (string, bool) {
		segment = strings.TrimSpace(segment)
		return segment, segment != ""
	})

	return strings.Join(trimmed, "\n\n")
}
