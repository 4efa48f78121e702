package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"blsync/pkg/config"
	"blsync/pkg/history"
	"blsync/pkg/logger"
	"blsync/pkg/pipeline"
	"blsync/pkg/storage"
	syncpkg "blsync/pkg/sync"
	"blsync/pkg/task"
)

type SyncHandler struct {
	config  *config.Config
	store   storage.ObjectStore
	prefix  string
	history *history.Store
	logger  *logger.Logger
}

func NewSyncHandler(cfg *config.Config, store storage.ObjectStore, prefix string, hist *history.Store, log *logger.Logger) *SyncHandler {
	if log == nil {
		log = logger.NewDefault()
	}
	return &SyncHandler{
		config:  cfg,
		store:   store,
		prefix:  prefix,
		history: hist,
		logger:  log,
	}
}

// Handle runs one sync pass. An index-fetch failure is returned so asynq
// retries the task; per-file failures are part of the summary, not task
// failure.
func (h *SyncHandler) Handle(ctx context.Context, asynqTask *asynq.Task) error {
	var payload task.SyncPassPayload
	if err := json.Unmarshal(asynqTask.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	opts := buildSyncOptions(h.config, payload)
	syncer := pipeline.NewSyncer(h.config, h.store, h.prefix, h.logger, opts)

	started := time.Now()
	result, err := syncer.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync pass: %w", err)
	}

	summary := &task.PassSummary{
		Kind:        task.TaskTypeSyncPass,
		Source:      opts.BaseURL,
		Uploaded:    len(result.Uploaded),
		Skipped:     len(result.Skipped),
		Failed:      len(result.Failed),
		Deleted:     len(result.Deleted),
		FailedNames: result.Failed,
		StartedAt:   started,
		Duration:    result.Duration.String(),
	}
	if err := h.history.Record(ctx, summary); err != nil {
		h.logger.Error("failed to record pass summary", err, nil)
	}

	return nil
}

// buildSyncOptions layers per-task overrides on top of the configured pass
// parameters. The resulting BaseURL is the one the pass actually runs
// against, so summaries report it verbatim.
func buildSyncOptions(cfg *config.Config, payload task.SyncPassPayload) syncpkg.Options {
	opts := syncpkg.Options{
		BaseURL:     payload.BaseURL,
		Concurrency: payload.Concurrency,
		Delete:      cfg.Sync.Delete,
	}
	if opts.BaseURL == "" {
		opts.BaseURL = cfg.Source.BaseURL
	}
	if payload.Delete != nil {
		opts.Delete = *payload.Delete
	}
	return opts
}
