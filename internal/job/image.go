package job

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/goevery/relay/internal/broadcast"
	"github.com/goevery/relay/internal/pubsub"
	"github.com/goevery/relay/internal/task"
	"go.uber.org/zap"
)

const ImageSender = "Server"

type ImageResult struct {
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
}

type ImageDelivery struct {
	Status    string `json:"status"`
	Type      string `json:"type"`
	ImageData string `json:"imageData"`
	MessageId string `json:"messageId"`
	Prompt    string `json:"prompt"`
	Sender    string `json:"sender"`
}

type ImageJob struct {
	generator Generator
	emitter   pubsub.Emitter
	logger    *zap.Logger
}

func NewImageJob(
	generator Generator,
	emitter pubsub.Emitter,
	logger *zap.Logger,
) *ImageJob {
	return &ImageJob{
		generator,
		emitter,
		logger,
	}
}

func (j *ImageJob) Handle(ctx context.Context, payload task.Payload) error {
	_, err := j.Run(ctx, payload)

	return err
}

// Run generates an image for the payload prompt and pushes it to the target
// session only. A failed push does not fail the job.
func (j *ImageJob) Run(ctx context.Context, payload task.Payload) (ImageResult, error) {
	prompt := promptOf(payload.Content)

	j.logger.Info("generating image",
		zap.String("messageId", payload.Id),
		zap.String("prompt", truncate(prompt, 80)))

	images, err := j.generator.Generate(ctx, NewGenerateRequest(prompt))
	if err != nil {
		return ImageResult{}, fmt.Errorf("generate image for %s: %w", payload.Id, err)
	}

	if len(images) == 0 {
		return ImageResult{}, fmt.Errorf("generate image for %s: %w", payload.Id, ErrNoImages)
	}

	result := ImageResult{
		Prompt: prompt,
		Images: images[:1],
	}

	j.deliver(ctx, payload, prompt, images[0])

	return result, nil
}

func (j *ImageJob) deliver(ctx context.Context, payload task.Payload, prompt string, encoded string) {
	if payload.TargetSessionId == "" {
		j.logger.Warn("no target session for generated image", zap.String("messageId", payload.Id))
		return
	}

	imageData, err := normalizeImage(encoded)
	if err != nil {
		j.logger.Error("failed to normalize generated image",
			zap.String("messageId", payload.Id),
			zap.Error(err))
		return
	}

	err = j.emitter.EmitTo(ctx, payload.TargetSessionId, broadcast.EventImage, ImageDelivery{
		Status:    "success",
		Type:      "image",
		ImageData: imageData,
		MessageId: payload.Id,
		Prompt:    prompt,
		Sender:    ImageSender,
	})
	if err != nil {
		j.logger.Error("failed to deliver generated image",
			zap.String("messageId", payload.Id),
			zap.String("sessionId", payload.TargetSessionId),
			zap.Error(err))
		return
	}

	j.logger.Info("generated image delivered",
		zap.String("messageId", payload.Id),
		zap.String("sessionId", payload.TargetSessionId))
}

// promptOf accepts either plain text or a JSON object with a text field.
func promptOf(content string) string {
	var envelope struct {
		Text *string `json:"text"`
	}

	if err := json.Unmarshal([]byte(content), &envelope); err != nil || envelope.Text == nil {
		return content
	}

	return *envelope.Text
}

// normalizeImage re-encodes any supported image as base64 JPEG.
func normalizeImage(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode base64 image: %w", err)
	}

	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return "", fmt.Errorf("unexpected image content type %s", detected.String())
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode %s image: %w", detected.String(), err)
	}

	var buffer bytes.Buffer
	if err := jpeg.Encode(&buffer, img, nil); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buffer.Bytes()), nil
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n])
}
