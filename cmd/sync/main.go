package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"blsync/pkg/config"
	"blsync/pkg/logger"
	"blsync/pkg/pipeline"
	syncpkg "blsync/pkg/sync"
)

// Exit codes: 0 success (per-file failures are reported, not fatal),
// 1 configuration or index-listing failure, 2 destination endpoint
// unreachable, 130 interrupted.
const (
	exitOK          = 0
	exitError       = 1
	exitInfra       = 2
	exitInterrupted = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = flag.String("config", "", "path to config file (optional)")
		baseURL     = flag.String("base-url", "", "source HTTP directory root")
		bucket      = flag.String("bucket", "", "destination S3 bucket")
		prefix      = flag.String("prefix", "", "destination S3 prefix")
		destDir     = flag.String("dest-dir", "", "destination local directory")
		region      = flag.String("region", "", "AWS region (falls back to AWS_REGION)")
		concurrency = flag.Int("concurrency", 0, "number of parallel transfers")
		doDelete    = flag.Bool("delete", false, "delete destination objects that no longer exist at source")
		logLevel    = flag.String("log-level", "", "log level (debug|info|warn|error|fatal)")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", err, map[string]any{
			"config_path": *configPath,
		})
		return exitError
	}

	if *baseURL != "" {
		cfg.Source.BaseURL = *baseURL
	}
	if *destDir != "" {
		cfg.Destination.Type = "local"
		cfg.Destination.Local = &config.LocalConfig{Dir: *destDir}
	} else if *bucket != "" {
		cfg.Destination.Type = "s3"
		if cfg.Destination.S3 == nil {
			cfg.Destination.S3 = &config.S3Config{Region: "us-east-1", MaxRetries: 3, ReadTimeoutSeconds: 300}
		}
		cfg.Destination.S3.Bucket = *bucket
		cfg.Destination.S3.Prefix = *prefix
	}
	if *region != "" && cfg.Destination.S3 != nil {
		cfg.Destination.S3.Region = *region
	}
	if *concurrency > 0 {
		cfg.Sync.Concurrency = *concurrency
	}
	if *doDelete {
		cfg.Sync.Delete = true
	}
	if *logLevel != "" {
		cfg.Daemon.LogLevel = *logLevel
	}

	if err := config.Finalize(cfg); err != nil {
		logger.Error("invalid configuration", err, nil)
		return exitError
	}

	log := logger.NewDefault()
	log.SetLevel(logger.ParseLevel(cfg.Daemon.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, keyPrefix, err := pipeline.NewStore(cfg)
	if err != nil {
		log.Error("failed to create destination store", err, nil)
		return exitError
	}
	defer func() {
		_ = store.Close()
	}()

	if err := store.Ping(ctx); err != nil {
		log.Error("destination endpoint unreachable", err, nil)
		return exitInfra
	}

	syncer := pipeline.NewSyncer(cfg, store, keyPrefix, log, syncpkg.Options{
		Delete: cfg.Sync.Delete,
	})

	result, err := syncer.Run(ctx)
	if ctx.Err() != nil {
		log.Warn("sync interrupted", nil)
		return exitInterrupted
	}
	if err != nil {
		log.Error("sync pass failed", err, nil)
		return exitError
	}

	// Per-file failures are summarized, never a process failure.
	for name, reason := range result.Reasons {
		log.Warn("file failed", map[string]any{
			"name":   name,
			"reason": reason,
		})
	}

	return exitOK
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Default()
}
