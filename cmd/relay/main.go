package main

import (
	"fmt"
	"os"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "relay",
		Usage: "Real-time chat relay with background derivation jobs",
		Commands: []*cli.Command{
			serverCmd(),
			workerCmd(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Serve WebSocket, REST and SSE clients",
		Action: func(c *cli.Context) error {
			return run(func(logger *zap.Logger, settings Settings) (runner, error) {
				return NewServerApp(logger, settings)
			})
		},
	}
}

func workerCmd() *cli.Command {
	return &cli.Command{
		Name:    "worker",
		Aliases: []string{"w"},
		Usage:   "Run derivation jobs from the AMQP queue",
		Action: func(c *cli.Context) error {
			return run(func(logger *zap.Logger, settings Settings) (runner, error) {
				return NewWorkerApp(logger, settings)
			})
		},
	}
}

func run(build func(logger *zap.Logger, settings Settings) (runner, error)) error {
	// a missing .env file is not an error
	_ = godotenv.Load()

	var settings Settings
	_, err := env.UnmarshalFromEnviron(&settings)
	if err != nil {
		return fmt.Errorf("failed to parse settings from environment: %w", err)
	}

	logger, err := buildZapLogger(settings.LogEncoding, settings.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	app, err := build(logger, settings)
	if err != nil {
		logger.Error("failed to setup", zap.Error(err))
		return err
	}

	return app.Run()
}
