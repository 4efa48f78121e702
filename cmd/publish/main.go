package main

import (
	"flag"

	"blsync/pkg/config"
	"blsync/pkg/logger"
	"blsync/pkg/publisher"
	"blsync/pkg/task"
)

func main() {
	var (
		configPath = flag.String("config", "/etc/blsync/config.toml", "path to config file")
		kind       = flag.String("task", "sync", "task to enqueue: sync or api-fetch")
		baseURL    = flag.String("base-url", "", "override the configured source base URL")
		apiURL     = flag.String("url", "", "override the configured API URL")
		doDelete   = flag.Bool("delete", false, "enable deletion reconciliation for this pass")
	)
	flag.Parse()

	config, err := config.LoadFromFile(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", map[string]any{
			"config_path": *configPath,
			"error":       err.Error(),
		})
	}

	publisher, err := publisher.NewPublisher(config)
	if err != nil {
		logger.Fatal("failed to create publisher", map[string]any{
			"error": err.Error(),
		})
	}
	defer publisher.Close()

	switch *kind {
	case "sync":
		payload := &task.SyncPassPayload{BaseURL: *baseURL}
		if *doDelete {
			enabled := true
			payload.Delete = &enabled
		}
		if err := publisher.PublishSyncPass(payload); err != nil {
			logger.Fatal("failed to publish task", map[string]any{
				"error": err.Error(),
			})
		}
	case "api-fetch":
		if err := publisher.PublishAPIFetch(&task.APIFetchPayload{URL: *apiURL}); err != nil {
			logger.Fatal("failed to publish task", map[string]any{
				"error": err.Error(),
			})
		}
	default:
		logger.Fatal("unknown task kind", map[string]any{
			"task": *kind,
		})
	}

	logger.Info("task published successfully", map[string]any{
		"task": *kind,
	})
}
