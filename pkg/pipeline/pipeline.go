// Package pipeline wires the configured components of a pass together:
// source HTTP client, destination store, sync engine, API fetcher.
package pipeline

import (
	"fmt"
	"time"

	"blsync/pkg/api"
	"blsync/pkg/config"
	"blsync/pkg/fetch"
	"blsync/pkg/logger"
	"blsync/pkg/source"
	"blsync/pkg/storage"
	syncpkg "blsync/pkg/sync"
)

func NewFetchClient(cfg *config.Config, log *logger.Logger) *fetch.Client {
	return fetch.NewClient(fetch.ClientOptions{
		UserAgent: cfg.Source.UserAgent,
		Timeout:   time.Duration(cfg.Source.DownloadTimeoutSec) * time.Second,
		Retry: fetch.RetryPolicy{
			MaxAttempts: cfg.Source.MaxRetries,
			BaseDelay:   time.Duration(cfg.Source.RetryBaseSeconds) * time.Second,
			MaxDelay:    time.Duration(cfg.Source.RetryCapSeconds) * time.Second,
			Retryable:   fetch.IsRetryable,
		},
		Logger: log,
	})
}

// NewStore builds the configured destination backend and returns it with
// the normalized key prefix for this destination.
func NewStore(cfg *config.Config) (storage.ObjectStore, string, error) {
	factory := storage.NewStorageFactory()

	switch cfg.Destination.Type {
	case "s3":
		if cfg.Destination.S3 == nil {
			return nil, "", fmt.Errorf("s3 configuration is required when destination type is 's3'")
		}
		store, err := factory.CreateS3Backend(&storage.S3Config{
			Endpoint:           cfg.Destination.S3.Endpoint,
			Region:             cfg.Destination.S3.Region,
			Bucket:             cfg.Destination.S3.Bucket,
			AccessKey:          cfg.Destination.S3.AccessKey,
			SecretKey:          cfg.Destination.S3.SecretKey,
			MaxRetries:         cfg.Destination.S3.MaxRetries,
			ReadTimeoutSeconds: cfg.Destination.S3.ReadTimeoutSeconds,
			ForcePathStyle:     cfg.Destination.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, "", fmt.Errorf("create s3 backend: %w", err)
		}
		return store, cfg.Destination.S3.Prefix, nil
	case "local":
		if cfg.Destination.Local == nil {
			return nil, "", fmt.Errorf("local configuration is required when destination type is 'local'")
		}
		store, err := factory.CreateLocalBackend(&storage.LocalConfig{
			Dir: cfg.Destination.Local.Dir,
		})
		if err != nil {
			return nil, "", fmt.Errorf("create local backend: %w", err)
		}
		return store, cfg.Destination.Local.Prefix, nil
	default:
		return nil, "", fmt.Errorf("unsupported destination type: %s", cfg.Destination.Type)
	}
}

func NewSyncer(cfg *config.Config, store storage.ObjectStore, prefix string, log *logger.Logger, opts syncpkg.Options) *syncpkg.Syncer {
	if opts.BaseURL == "" {
		opts.BaseURL = cfg.Source.BaseURL
	}
	if opts.Prefix == "" {
		opts.Prefix = prefix
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = cfg.Sync.Concurrency
	}

	client := NewFetchClient(cfg, log)
	lister := source.NewLister(client, log)
	return syncpkg.New(lister, client, store, log, opts)
}

func NewAPIFetcher(cfg *config.Config, store storage.ObjectStore, log *logger.Logger, url string) *api.Fetcher {
	if url == "" {
		url = cfg.API.URL
	}
	client := NewFetchClient(cfg, log)
	return api.NewFetcher(client, store, log, api.Options{
		URL:            url,
		RecordsField:   cfg.API.RecordsField,
		DestinationKey: cfg.API.DestinationKey,
	})
}
