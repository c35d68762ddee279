package job

import (
	"github.com/goevery/relay/internal/task"
	"go.uber.org/zap"
)

// Jobs is the full set of task handlers a worker serves.
type Jobs struct {
	Processor     *Processor
	Image         *ImageJob
	Transcription *TranscriptionJob
	Notification  *NotificationJob
}

func (j Jobs) Register(worker *task.Worker, logger *zap.Logger) {
	worker.Handle(task.ProcessMessage, task.Bind(task.ProcessMessage, logger, j.Processor.Handle))
	worker.Handle(task.GenerateImage, task.Bind(task.GenerateImage, logger, j.Image.Handle))
	worker.Handle(task.WhisperAudio, task.Bind(task.WhisperAudio, logger, j.Transcription.Handle))
	worker.Handle(task.BroadcastNotification, task.Bind(task.BroadcastNotification, logger, j.Notification.Handle))
}
