package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/goevery/relay/internal/broadcast"
	"github.com/goevery/relay/internal/handler"
	"github.com/goevery/relay/internal/ingest"
	"github.com/goevery/relay/internal/job"
	"github.com/goevery/relay/internal/pubsub"
	"github.com/goevery/relay/internal/server"
	"github.com/goevery/relay/internal/session"
	"github.com/goevery/relay/internal/task"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

type runner interface {
	Run() error
}

type App struct {
	logger      *zap.Logger
	settings    Settings
	redisClient *redis.Client
	queue       *task.Queue

	// server only
	registry        *session.InMemoryRegistry
	relay           *pubsub.Relay
	websocketServer *server.WebSocketServer
	restServer      *server.RESTServer
	streamServer    *server.StreamServer

	// nil on a server that hands jobs to external workers
	worker *task.Worker
}

func NewServerApp(logger *zap.Logger, settings Settings) (*App, error) {
	redisClient, err := newRedisClient(settings.RedisURL)
	if err != nil {
		return nil, err
	}

	queue, err := newQueue(settings, logger)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	registry := session.NewInMemoryRegistry(logger)
	publisher := pubsub.NewRedisPublisher(redisClient, logger)
	engine := broadcast.NewEngine(registry, publisher, logger)
	orchestrator := task.NewOrchestrator(queue.Publisher, logger)
	ingestService := ingest.NewService(engine, orchestrator, logger)

	originChecker := server.NewOriginChecker(settings.AllowedOrigin)
	websocketUpgrader := &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       originChecker.Check,
		EnableCompression: true,
	}

	heartbeatHandler := handler.NewHeartbeatHandler()
	messageHandler := handler.NewMessageHandler(ingestService, settings.SendConfirmation, settings.BroadcastToOthers)

	router := server.NewRouter(
		logger,
		heartbeatHandler,
		messageHandler,
	)

	websocketServer := server.NewWebSocketServer(
		logger,
		websocketUpgrader,
		registry,
		router,
		settings.WSPath,
	)
	restServer := server.NewRESTServer(
		logger,
		originChecker,
		handler.NewHealthHandler(),
		messageHandler,
		handler.NewSystemBroadcastHandler(ingestService),
		handler.NewPublishEventHandler(engine),
		handler.NewNotificationHandler(orchestrator),
	)
	streamServer := server.NewStreamServer(logger, redisClient, originChecker)

	var worker *task.Worker
	if settings.EmbeddedWorker() {
		// sessions are local, so jobs push through the registry directly
		worker, err = newWorker(settings, queue, orchestrator, registry, engine, logger)
		if err != nil {
			_ = queue.Close()
			_ = redisClient.Close()
			return nil, err
		}
	}

	// only external workers publish on the emit relay
	var relay *pubsub.Relay
	if !settings.EmbeddedWorker() {
		relay = pubsub.NewRelay(redisClient, registry, logger)
	}

	return &App{
		logger:          logger,
		settings:        settings,
		redisClient:     redisClient,
		queue:           queue,
		registry:        registry,
		relay:           relay,
		websocketServer: websocketServer,
		restServer:      restServer,
		streamServer:    streamServer,
		worker:          worker,
	}, nil
}

func NewWorkerApp(logger *zap.Logger, settings Settings) (*App, error) {
	if settings.EmbeddedWorker() {
		return nil, errors.New("worker requires AMQP_URL; without it jobs run inside the server")
	}

	redisClient, err := newRedisClient(settings.RedisURL)
	if err != nil {
		return nil, err
	}

	queue, err := newQueue(settings, logger)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	publisher := pubsub.NewRedisPublisher(redisClient, logger)
	emitter := pubsub.NewRedisEmitter(publisher)
	notifier := broadcast.NewRemoteNotifier(emitter, publisher, logger)
	orchestrator := task.NewOrchestrator(queue.Publisher, logger)

	worker, err := newWorker(settings, queue, orchestrator, emitter, notifier, logger)
	if err != nil {
		_ = queue.Close()
		_ = redisClient.Close()
		return nil, err
	}

	return &App{
		logger:      logger,
		settings:    settings,
		redisClient: redisClient,
		queue:       queue,
		worker:      worker,
	}, nil
}

func newRedisClient(url string) (*redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}

	return redis.NewClient(options), nil
}

func newQueue(settings Settings, logger *zap.Logger) (*task.Queue, error) {
	if settings.EmbeddedWorker() {
		logger.Info("no AMQP_URL configured, running jobs in process")
		return task.NewInProcessQueue(logger), nil
	}

	return task.NewAMQPQueue(settings.AMQPURL, logger)
}

func newWorker(
	settings Settings,
	queue *task.Queue,
	enqueuer task.Enqueuer,
	emitter pubsub.Emitter,
	notifier broadcast.Notifier,
	logger *zap.Logger,
) (*task.Worker, error) {
	worker, err := task.NewWorker(queue, settings.WorkerConcurrency, logger)
	if err != nil {
		return nil, err
	}

	generator := job.NewHTTPGenerator(settings.ImageGeneratorURL, settings.ImageGeneratorAPIKey, logger)
	transcriber := job.NewCommandTranscriber(settings.WhisperBinary, settings.WhisperModel, logger)

	jobs := job.Jobs{
		Processor:     job.NewProcessor(enqueuer, logger),
		Image:         job.NewImageJob(generator, emitter, logger),
		Transcription: job.NewTranscriptionJob(transcriber, enqueuer, logger),
		Notification:  job.NewNotificationJob(notifier, logger),
	}
	jobs.Register(worker, logger)

	return worker, nil
}

func (a *App) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	defer a.close()

	group, groupCtx := errgroup.WithContext(ctx)

	if a.worker != nil {
		group.Go(func() error {
			return a.worker.Run(groupCtx)
		})
	}

	if a.registry != nil {
		a.startHttpServer(groupCtx, group)
	}

	if a.relay != nil {
		group.Go(func() error {
			return a.relay.Run(groupCtx)
		})
	}

	return group.Wait()
}

func (a *App) startHttpServer(ctx context.Context, group *errgroup.Group) {
	address := fmt.Sprintf("0.0.0.0:%d", a.settings.Port)

	router := mux.NewRouter()
	baseRouter := router
	if a.settings.BasePath != "" {
		baseRouter = router.PathPrefix(a.settings.BasePath).Subrouter()
	}

	apiRouter := baseRouter.PathPrefix("/api").Subrouter()

	a.websocketServer.Register(baseRouter)
	a.restServer.Register(apiRouter)
	a.streamServer.Register(apiRouter)

	httpServer := &http.Server{
		Addr:    address,
		Handler: router,
	}
	httpServer.RegisterOnShutdown(a.streamServer.Close)

	group.Go(func() error {
		a.logger.Info("starting http server",
			zap.String("address", address),
			zap.Bool("embeddedWorker", a.worker != nil))

		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		<-ctx.Done()

		a.logger.Info("stopping http server")

		shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCtxCancel()

		// hijacked websocket connections are not tracked by Shutdown
		a.registry.Close()

		err := httpServer.Shutdown(shutdownCtx)
		if err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}

		a.logger.Info("http server stopped")

		return nil
	})
}

func (a *App) close() {
	if err := a.queue.Close(); err != nil {
		a.logger.Warn("failed to close task queue", zap.Error(err))
	}

	if err := a.redisClient.Close(); err != nil {
		a.logger.Warn("failed to close redis client", zap.Error(err))
	}
}
