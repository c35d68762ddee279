package job

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const whisperBeamSize = "5"

type whisperSegment struct {
	Text string `json:"text"`
}

type whisperOutput struct {
	Transcription []whisperSegment `json:"transcription"`
}

// CommandTranscriber runs a local whisper.cpp binary and reads its JSON
// output file.
type CommandTranscriber struct {
	binary string
	model  string
	logger *zap.Logger
}

func NewCommandTranscriber(binary string, model string, logger *zap.Logger) *CommandTranscriber {
	return &CommandTranscriber{
		binary,
		model,
		logger,
	}
}

func (t *CommandTranscriber) Transcribe(ctx context.Context, path string) ([]string, error) {
	// whisper.cpp appends .json to the output prefix
	outputPrefix := path
	outputPath := outputPrefix + ".json"
	defer os.Remove(outputPath)

	command := exec.CommandContext(ctx, t.binary,
		"-m", t.model,
		"-f", path,
		"-bs", whisperBeamSize,
		"-oj",
		"-of", outputPrefix,
		"-np",
	)

	output, err := command.CombinedOutput()
	if err != nil {
		t.logger.Debug("whisper output", zap.ByteString("output", output))
		return nil, fmt.Errorf("run whisper: %w", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}

	var decoded whisperOutput
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode whisper output: %w", err)
	}

	return lo.Map(decoded.Transcription, func(segment whisperSegment, _ int) string {
		return segment.Text
	}), nil
}
