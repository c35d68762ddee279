package main

type Settings struct {
	Port        int    `env:"PORT,default=8000"`
	BasePath    string `env:"BASE_PATH"`
	WSPath      string `env:"WS_PATH,default=/ws/chat/"`
	LogEncoding string `env:"LOG_ENCODING,default=console"`
	LogLevel    string `env:"LOG_LEVEL,default=debug"`

	RedisURL string `env:"REDIS_URL,default=redis://localhost:6379/0"`
	// Jobs run in the server process on an in-memory queue when unset.
	AMQPURL string `env:"AMQP_URL"`

	ImageGeneratorURL    string `env:"IMAGE_GENERATOR_URL,default=http://localhost:9000"`
	ImageGeneratorAPIKey string `env:"IMAGE_GENERATOR_API_KEY"`
	WhisperBinary        string `env:"WHISPER_BINARY,default=whisper-cli"`
	WhisperModel         string `env:"WHISPER_MODEL,default=models/ggml-large-v3-turbo.bin"`

	AllowedOrigin     string `env:"ALLOWED_ORIGIN,default=*"`
	SendConfirmation  bool   `env:"SEND_CONFIRMATION,default=true"`
	BroadcastToOthers bool   `env:"BROADCAST_TO_OTHERS,default=true"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=4"`
}

func (s Settings) EmbeddedWorker() bool {
	return s.AMQPURL == ""
}
