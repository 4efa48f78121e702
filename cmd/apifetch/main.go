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
)

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
		configPath = flag.String("config", "", "path to config file (optional)")
		apiURL     = flag.String("url", "", "dataset API URL")
		destKey    = flag.String("key", "", "destination object key for the JSONL output")
		bucket     = flag.String("bucket", "", "destination S3 bucket")
		destDir    = flag.String("dest-dir", "", "destination local directory")
		logLevel   = flag.String("log-level", "", "log level (debug|info|warn|error|fatal)")
	)
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		logger.Error("failed to load config", err, map[string]any{
			"config_path": *configPath,
		})
		return exitError
	}

	if *apiURL != "" {
		cfg.API.URL = *apiURL
	}
	if *destKey != "" {
		cfg.API.DestinationKey = *destKey
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
	}
	if *logLevel != "" {
		cfg.Daemon.LogLevel = *logLevel
	}
	// The source base URL is unused here but required by validation; point
	// it at the API host when only flags are supplied.
	if cfg.Source.BaseURL == "" {
		cfg.Source.BaseURL = cfg.API.URL
	}

	if err := config.Finalize(cfg); err != nil {
		logger.Error("invalid configuration", err, nil)
		return exitError
	}

	log := logger.NewDefault()
	log.SetLevel(logger.ParseLevel(cfg.Daemon.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, _, err := pipeline.NewStore(cfg)
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

	fetcher := pipeline.NewAPIFetcher(cfg, store, log, "")
	if _, err := fetcher.Run(ctx); err != nil {
		if ctx.Err() != nil {
			log.Warn("api fetch interrupted", nil)
			return exitInterrupted
		}
		log.Error("api fetch failed", err, nil)
		return exitError
	}

	return exitOK
}
