package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"blsync/pkg/config"
	"blsync/pkg/history"
	"blsync/pkg/logger"
	"blsync/pkg/publisher"
	"blsync/pkg/task"
)

// HTTPHandler exposes the daemon's trigger and status surface: enqueue a
// sync pass or API fetch, inspect recent pass summaries.
type HTTPHandler struct {
	publisher *publisher.Publisher
	history   *history.Store
	logger    *logger.Logger
}

type TriggerRequest struct {
	BaseURL     string `json:"base_url,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"`
	Delete      *bool  `json:"delete,omitempty"`
	URL         string `json:"url,omitempty"`
}

type TriggerResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type StatusResponse struct {
	Passes []task.PassSummary `json:"passes"`
}

func NewHTTPHandler(config *config.Config, hist *history.Store) (*HTTPHandler, error) {
	pub, err := publisher.NewPublisher(config)
	if err != nil {
		return nil, err
	}

	return &HTTPHandler{
		publisher: pub,
		history:   hist,
		logger:    logger.NewDefault(),
	}, nil
}

func (h *HTTPHandler) Close() {
	if h.publisher != nil {
		h.publisher.Close()
	}
}

func (h *HTTPHandler) SyncHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req TriggerRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.sendError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
	}

	payload := &task.SyncPassPayload{
		BaseURL:     req.BaseURL,
		Concurrency: req.Concurrency,
		Delete:      req.Delete,
	}
	if err := h.publisher.PublishSyncPass(payload); err != nil {
		h.logger.Error("failed to publish sync task", err, nil)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, TriggerResponse{
		Success: true,
		Message: "sync pass enqueued",
	})
}

func (h *HTTPHandler) APIFetchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req TriggerRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.sendError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
	}

	if err := h.publisher.PublishAPIFetch(&task.APIFetchPayload{URL: req.URL}); err != nil {
		h.logger.Error("failed to publish api fetch task", err, nil)
		h.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.sendJSON(w, http.StatusOK, TriggerResponse{
		Success: true,
		Message: "api fetch enqueued",
	})
}

func (h *HTTPHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	n := int64(10)
	if raw := r.URL.Query().Get("n"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			n = parsed
		}
	}

	passes, err := h.history.Recent(r.Context(), n)
	if err != nil {
		h.logger.Error("failed to read pass history", err, nil)
		h.sendError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.sendJSON(w, http.StatusOK, StatusResponse{Passes: passes})
}

func (h *HTTPHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) sendJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", err, nil)
	}
}

func (h *HTTPHandler) sendError(w http.ResponseWriter, statusCode int, message string) {
	h.sendJSON(w, statusCode, TriggerResponse{
		Success: false,
		Error:   message,
	})
}
