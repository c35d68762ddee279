package task

// Task names double as queue topics.
const (
	ProcessMessage        = "processMessageAsync"
	GenerateImage         = "generateImageAsync"
	WhisperAudio          = "whisperAudioAsync"
	BroadcastNotification = "broadcastNotificationAsync"
)

var Names = []string{ProcessMessage, GenerateImage, WhisperAudio, BroadcastNotification}
