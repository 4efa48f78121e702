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
	"blsync/pkg/task"
)

type APIFetchHandler struct {
	config  *config.Config
	store   storage.ObjectStore
	history *history.Store
	logger  *logger.Logger
}

func NewAPIFetchHandler(cfg *config.Config, store storage.ObjectStore, hist *history.Store, log *logger.Logger) *APIFetchHandler {
	if log == nil {
		log = logger.NewDefault()
	}
	return &APIFetchHandler{
		config:  cfg,
		store:   store,
		history: hist,
		logger:  log,
	}
}

func (h *APIFetchHandler) Handle(ctx context.Context, asynqTask *asynq.Task) error {
	var payload task.APIFetchPayload
	if err := json.Unmarshal(asynqTask.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	fetcher := pipeline.NewAPIFetcher(h.config, h.store, h.logger, payload.URL)

	started := time.Now()
	records, err := fetcher.Run(ctx)
	if err != nil {
		return fmt.Errorf("api fetch: %w", err)
	}

	summary := &task.PassSummary{
		Kind:      task.TaskTypeAPIFetch,
		Source:    h.config.API.URL,
		Records:   records,
		StartedAt: started,
		Duration:  time.Since(started).String(),
	}
	if err := h.history.Record(ctx, summary); err != nil {
		h.logger.Error("failed to record pass summary", err, nil)
	}

	return nil
}
