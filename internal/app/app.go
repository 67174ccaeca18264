package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nsqio/go-nsq"
	"google.golang.org/api/option"

	"tubewatch/backend/features/deadletter"
	"tubewatch/backend/features/job"
	"tubewatch/backend/features/stats"
	"tubewatch/backend/features/submit"
	"tubewatch/backend/internal/adapter/youtube"
	"tubewatch/backend/internal/config"
	"tubewatch/backend/internal/middleware"
	"tubewatch/backend/internal/settings"
	"tubewatch/backend/internal/worker"
)

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

// JobStore is the job record store shared by the intake, the resolver and retries.
type JobStore interface {
	Create(ctx context.Context, j *job.Job) error
	Get(ctx context.Context, id string) (*job.Job, error)
	Update(ctx context.Context, id string, mutate func(*job.Job) error) (*job.Job, error)
	Count(ctx context.Context) (int, error)
}

type App struct {
	Handler            http.Handler
	SettingsService    *settings.Service
	ResolverConsumer   *worker.ResolverConsumer
	DeadLetterConsumer *worker.DeadLetterConsumer

	cfg *config.Config
}

func New(
	cfg *config.Config,
	db *sql.DB,
	store JobStore,
	taskPub TaskPublisher,
	logger *slog.Logger,
	searchOpts ...option.ClientOption,
) (*App, error) {
	// Feature: Settings
	settingsRepo := settings.NewPostgresRepo(db)
	settingsService := settings.NewService(settingsRepo)
	if err := settingsService.SeedAPIKey(context.Background(), cfg.YouTubeAPIKey); err != nil {
		logger.Warn("failed to seed youtube api key", "error", err)
	}
	settingsHandler := settings.NewHandler(settingsService)

	// Feature: Job
	jobHandler := job.NewHandler(store)

	// Feature: Submit
	submitService := submit.NewService(store, taskPub)
	submitHandler := submit.NewHandler(submitService)

	// Feature: Dead letter
	failedRepo := deadletter.NewPostgresRepo(db)
	failedService := deadletter.NewService(failedRepo, store, taskPub, logger)
	failedHandler := deadletter.NewHandler(failedService)

	// Feature: Stats
	statsHandler := stats.NewHandler(store, failedRepo)

	// Adapters: Dynamic
	searcher := youtube.NewDynamicSearcher(settingsService, searchOpts...)

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /submit", middleware.CorrelationID(middleware.CORS(submitHandler.Submit)))
	mux.Handle("OPTIONS /submit", middleware.CorrelationID(middleware.CORS(submitHandler.Submit)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(middleware.CORS(failedHandler.List)))
	mux.Handle("POST /jobs/failed/{id}/retry", middleware.CorrelationID(middleware.CORS(failedHandler.Retry)))
	mux.Handle("GET /jobs/{id}", middleware.CorrelationID(middleware.CORS(jobHandler.Get)))

	mux.Handle("GET /settings", middleware.CorrelationID(middleware.CORS(settingsHandler.GetSettings)))
	mux.Handle("PUT /settings", middleware.CorrelationID(middleware.CORS(settingsHandler.UpdateSettings)))

	mux.Handle("GET /stats", middleware.CorrelationID(middleware.CORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Workers
	timeout := time.Duration(cfg.ResolveTimeoutSeconds) * time.Second
	resolver := worker.NewResolverConsumer(store, searcher, taskPub, timeout)
	deadLetter := worker.NewDeadLetterConsumer(failedRepo)

	return &App{
		Handler:            mux,
		SettingsService:    settingsService,
		ResolverConsumer:   resolver,
		DeadLetterConsumer: deadLetter,
		cfg:                cfg,
	}, nil
}

// StartConsumers connects the enabled NSQ consumers. The caller stops them on shutdown.
func (a *App) StartConsumers() ([]*nsq.Consumer, error) {
	var consumers []*nsq.Consumer

	start := func(topic, channel string, h nsq.Handler, concurrency int) error {
		nsqCfg := nsq.NewConfig()
		nsqCfg.MaxAttempts = a.cfg.NSQMaxAttempts
		nsqCfg.MaxInFlight = concurrency

		c, err := nsq.NewConsumer(topic, channel, nsqCfg)
		if err != nil {
			return fmt.Errorf("failed to create consumer for %s: %w", topic, err)
		}
		c.AddConcurrentHandlers(h, concurrency)

		if a.cfg.NSQLookupd != "" {
			err = c.ConnectToNSQLookupd(a.cfg.NSQLookupd)
		} else {
			err = c.ConnectToNSQD(a.cfg.NSQDHost)
		}
		if err != nil {
			c.Stop()
			return fmt.Errorf("failed to connect consumer for %s: %w", topic, err)
		}

		slog.Info("NSQ consumer connected", "topic", topic, "channel", channel, "concurrency", concurrency)
		consumers = append(consumers, c)
		return nil
	}

	if a.cfg.EnableResolverWorker {
		if err := start(config.TopicSubmit, config.ChannelResolver, a.ResolverConsumer, a.cfg.ResolverConcurrency); err != nil {
			StopConsumers(consumers)
			return nil, err
		}
	}
	if a.cfg.EnableDeadLetterWorker {
		if err := start(config.TopicResolveError, config.ChannelDeadLetter, a.DeadLetterConsumer, 1); err != nil {
			StopConsumers(consumers)
			return nil, err
		}
	}
	return consumers, nil
}

func StopConsumers(consumers []*nsq.Consumer) {
	for _, c := range consumers {
		c.Stop()
		<-c.StopChan
	}
}

func (a *App) Run(ctx context.Context) error {
	port := a.cfg.ServerPort
	if port == 0 {
		port = 8081
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
