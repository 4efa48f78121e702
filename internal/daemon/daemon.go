package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"blsync/pkg/config"
	"blsync/pkg/handler"
	"blsync/pkg/history"
	httpHandler "blsync/pkg/http"
	"blsync/pkg/logger"
	"blsync/pkg/pipeline"
	"blsync/pkg/storage"
	"blsync/pkg/task"
)

// DaemonService runs the pipeline on a schedule: an asynq worker pool for
// sync-pass and api-fetch tasks, an asynq scheduler enqueueing them on the
// configured cron specs, and an HTTP surface for manual triggers and
// status.
type DaemonService struct {
	server      *asynq.Server
	scheduler   *asynq.Scheduler
	httpServer  *http.Server
	syncHandler *handler.SyncHandler
	apiHandler  *handler.APIFetchHandler
	httpHandler *httpHandler.HTTPHandler
	store       storage.ObjectStore
	config      *config.Config
}

func NewDaemonService(config *config.Config) (*DaemonService, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: config.Daemon.Concurrency,
		Queues: map[string]int{
			"default": 6,
		},
	})

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	store, prefix, err := pipeline.NewStore(config)
	if err != nil {
		return nil, fmt.Errorf("create destination store: %w", err)
	}

	hist := history.New(redisClient)
	log := logger.NewDefault()
	log.SetLevel(logger.ParseLevel(config.Daemon.LogLevel))

	syncHandler := handler.NewSyncHandler(config, store, prefix, hist, log)
	apiHandler := handler.NewAPIFetchHandler(config, store, hist, log)

	scheduler, err := newScheduler(redisOpt, config)
	if err != nil {
		return nil, err
	}

	webHandler, err := httpHandler.NewHTTPHandler(config, hist)
	if err != nil {
		return nil, fmt.Errorf("create http handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/sync", webHandler.SyncHandler)
	mux.HandleFunc("/api-fetch", webHandler.APIFetchHandler)
	mux.HandleFunc("/status", webHandler.StatusHandler)
	mux.HandleFunc("/healthz", webHandler.HealthHandler)

	httpServer := &http.Server{
		Addr:    config.HTTP.Addr,
		Handler: mux,
	}

	return &DaemonService{
		server:      server,
		scheduler:   scheduler,
		httpServer:  httpServer,
		syncHandler: syncHandler,
		apiHandler:  apiHandler,
		httpHandler: webHandler,
		store:       store,
		config:      config,
	}, nil
}

func newScheduler(redisOpt asynq.RedisClientOpt, config *config.Config) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt, nil)

	if spec := config.Daemon.SyncCron; spec != "" {
		payload, err := json.Marshal(&task.SyncPassPayload{})
		if err != nil {
			return nil, fmt.Errorf("marshal sync payload: %w", err)
		}
		if _, err := scheduler.Register(spec, asynq.NewTask(task.TaskTypeSyncPass, payload)); err != nil {
			return nil, fmt.Errorf("register sync schedule: %w", err)
		}
	}
	if spec := config.Daemon.APICron; spec != "" {
		payload, err := json.Marshal(&task.APIFetchPayload{})
		if err != nil {
			return nil, fmt.Errorf("marshal api fetch payload: %w", err)
		}
		if _, err := scheduler.Register(spec, asynq.NewTask(task.TaskTypeAPIFetch, payload)); err != nil {
			return nil, fmt.Errorf("register api fetch schedule: %w", err)
		}
	}

	return scheduler, nil
}

func (d *DaemonService) Start() error {
	// The destination must be reachable before the daemon accepts work.
	if err := d.store.Ping(context.Background()); err != nil {
		return fmt.Errorf("destination store unreachable: %w", err)
	}

	go func() {
		logger.Info("starting HTTP server", map[string]any{
			"addr": d.config.HTTP.Addr,
		})
		if err := d.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", err, nil)
		}
	}()

	if err := d.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	logger.Info("starting task server", map[string]any{
		"sync_cron": d.config.Daemon.SyncCron,
		"api_cron":  d.config.Daemon.APICron,
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(task.TaskTypeSyncPass, d.syncHandler.Handle)
	mux.HandleFunc(task.TaskTypeAPIFetch, d.apiHandler.Handle)
	return d.server.Run(mux)
}

func (d *DaemonService) Shutdown(ctx context.Context) error {
	logger.Info("initiating graceful shutdown", nil)

	if d.httpHandler != nil {
		d.httpHandler.Close()
	}

	if err := d.httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", err, nil)
	}

	d.scheduler.Shutdown()

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.server.Shutdown()
	}()

	select {
	case <-done:
		_ = d.store.Close()
		logger.Info("all tasks completed, shutdown successful", nil)
		return nil
	case <-ctx.Done():
		logger.Warn("shutdown timeout, forcing exit", nil)
		return ctx.Err()
	}
}
