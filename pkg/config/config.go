package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Source      SourceConfig      `mapstructure:"source" validate:"required"`
	API         APIConfig         `mapstructure:"api" validate:"required"`
	Destination DestinationConfig `mapstructure:"destination" validate:"required"`
	Sync        SyncConfig        `mapstructure:"sync" validate:"required"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Daemon      DaemonConfig      `mapstructure:"daemon" validate:"required"`
	HTTP        HTTPConfig        `mapstructure:"http" validate:"required"`
}

type SourceConfig struct {
	BaseURL            string `mapstructure:"base_url" validate:"required,url"`
	UserAgent          string `mapstructure:"user_agent" validate:"required"`
	IndexTimeoutSecs   int    `mapstructure:"index_timeout_seconds" validate:"min=1,max=600"`
	HeadTimeoutSecs    int    `mapstructure:"head_timeout_seconds" validate:"min=1,max=600"`
	DownloadTimeoutSec int    `mapstructure:"download_timeout_seconds" validate:"min=1,max=3600"`
	MaxRetries         int    `mapstructure:"max_retries" validate:"min=1,max=10"`
	RetryBaseSeconds   int    `mapstructure:"retry_base_seconds" validate:"min=1,max=60"`
	RetryCapSeconds    int    `mapstructure:"retry_cap_seconds" validate:"min=1,max=600"`
}

type APIConfig struct {
	URL            string `mapstructure:"url" validate:"required,url"`
	RecordsField   string `mapstructure:"records_field" validate:"required"`
	DestinationKey string `mapstructure:"destination_key" validate:"required"`
}

type DestinationConfig struct {
	Type  string       `mapstructure:"type" validate:"required,oneof=s3 local"`
	S3    *S3Config    `mapstructure:"s3"`
	Local *LocalConfig `mapstructure:"local"`
}

type S3Config struct {
	Endpoint           string `mapstructure:"endpoint" validate:"omitempty,url"`
	Region             string `mapstructure:"region" validate:"required,min=1"`
	Bucket             string `mapstructure:"bucket" validate:"required,min=1"`
	Prefix             string `mapstructure:"prefix"`
	AccessKey          string `mapstructure:"access_key"`
	SecretKey          string `mapstructure:"secret_key"`
	MaxRetries         int    `mapstructure:"max_retries" validate:"min=0,max=10"`
	ReadTimeoutSeconds int    `mapstructure:"read_timeout_seconds" validate:"min=1,max=3600"`
	ForcePathStyle     bool   `mapstructure:"force_path_style"`
}

type LocalConfig struct {
	Dir    string `mapstructure:"dir" validate:"required"`
	Prefix string `mapstructure:"prefix"`
}

type SyncConfig struct {
	Concurrency int  `mapstructure:"concurrency" validate:"min=1,max=64"`
	Delete      bool `mapstructure:"delete"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0,max=15"`
}

type DaemonConfig struct {
	LogLevel    string `mapstructure:"log_level" validate:"required,oneof=debug info warn error fatal"`
	Concurrency int    `mapstructure:"concurrency" validate:"min=1,max=64"`
	SyncCron    string `mapstructure:"sync_cron"`
	APICron     string `mapstructure:"api_cron"`
	MaxRetry    int    `mapstructure:"max_retry" validate:"min=0,max=10"`
	TimeoutMins int    `mapstructure:"timeout_minutes" validate:"min=1,max=1440"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" validate:"required,hostname_port"`
}

func LoadFromFile(filename string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(filename)
	v.SetConfigType("toml")

	v.SetEnvPrefix("BLSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvFallbacks(&config)

	if err := Finalize(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default builds a config from defaults and environment only, for CLI
// invocations that configure everything through flags. The result is not
// validated; callers apply their overrides and then call Finalize.
func Default() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("BLSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvFallbacks(&config)

	return &config, nil
}

// Finalize validates the assembled config and normalizes the URL and
// prefix conventions the sync engine relies on.
func Finalize(config *Config) error {
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	normalize(config)
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.user_agent", "blsync/1.0 (+https://github.com/blsync)")
	v.SetDefault("source.index_timeout_seconds", 60)
	v.SetDefault("source.head_timeout_seconds", 60)
	v.SetDefault("source.download_timeout_seconds", 120)
	v.SetDefault("source.max_retries", 5)
	v.SetDefault("source.retry_base_seconds", 1)
	v.SetDefault("source.retry_cap_seconds", 60)

	v.SetDefault("api.url", "https://datausa.io/api/data?drilldowns=Nation&measures=Population")
	v.SetDefault("api.records_field", "data")
	v.SetDefault("api.destination_key", "api/population_data.jsonl")

	v.SetDefault("destination.type", "s3")
	v.SetDefault("destination.s3.region", "us-east-1")
	v.SetDefault("destination.s3.max_retries", 3)
	v.SetDefault("destination.s3.read_timeout_seconds", 300)
	v.SetDefault("destination.s3.force_path_style", false)

	v.SetDefault("sync.concurrency", 8)
	v.SetDefault("sync.delete", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("daemon.log_level", "info")
	v.SetDefault("daemon.concurrency", 4)
	v.SetDefault("daemon.sync_cron", "0 * * * *")
	v.SetDefault("daemon.api_cron", "30 * * * *")
	v.SetDefault("daemon.max_retry", 3)
	v.SetDefault("daemon.timeout_minutes", 60)

	v.SetDefault("http.addr", ":8080")
}

// applyEnvFallbacks fills the S3 region from the standard AWS environment
// variables when the config file leaves it empty.
func applyEnvFallbacks(config *Config) {
	if config.Destination.S3 == nil {
		return
	}
	if config.Destination.S3.Region != "" {
		return
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		config.Destination.S3.Region = region
		return
	}
	if region := os.Getenv("AWS_DEFAULT_REGION"); region != "" {
		config.Destination.S3.Region = region
	}
}

// normalize enforces the trailing-slash conventions the sync engine relies
// on: base URLs always end in "/", non-empty prefixes always end in "/".
func normalize(config *Config) {
	if !strings.HasSuffix(config.Source.BaseURL, "/") {
		config.Source.BaseURL += "/"
	}
	if config.Destination.S3 != nil {
		config.Destination.S3.Prefix = NormalizePrefix(config.Destination.S3.Prefix)
	}
	if config.Destination.Local != nil {
		config.Destination.Local.Prefix = NormalizePrefix(config.Destination.Local.Prefix)
	}
}

func NormalizePrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	if !strings.HasSuffix(prefix, "/") {
		return prefix + "/"
	}
	return prefix
}

func validateConfig(config *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())

	if err := validate.StructExcept(config, "Destination.S3", "Destination.Local"); err != nil {
		return err
	}

	if err := validate.Var(config.Destination.Type, "required,oneof=s3 local"); err != nil {
		return err
	}

	switch config.Destination.Type {
	case "s3":
		if config.Destination.S3 == nil {
			return fmt.Errorf("s3 configuration is required when destination type is 's3'")
		}
		if err := validate.Struct(config.Destination.S3); err != nil {
			return err
		}
	case "local":
		if config.Destination.Local == nil {
			return fmt.Errorf("local configuration is required when destination type is 'local'")
		}
		if err := validate.Struct(config.Destination.Local); err != nil {
			return err
		}
	}

	return nil
}
