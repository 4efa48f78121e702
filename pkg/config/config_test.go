package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validS3Config = `
[source]
base_url = "https://download.bls.gov/pub/time.series/pr"

[destination]
type = "s3"

[destination.s3]
bucket = "bls-data"
prefix = "data"
`

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, validS3Config)

	config, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://download.bls.gov/pub/time.series/pr/", config.Source.BaseURL,
		"base url gains a trailing slash")
	assert.Equal(t, "data/", config.Destination.S3.Prefix,
		"prefix gains a trailing slash")
	assert.Equal(t, "bls-data", config.Destination.S3.Bucket)
	assert.Equal(t, "us-east-1", config.Destination.S3.Region, "defaulted")
	assert.Equal(t, 8, config.Sync.Concurrency, "defaulted")
	assert.Equal(t, "data", config.API.RecordsField, "defaulted")
	assert.Equal(t, "info", config.Daemon.LogLevel, "defaulted")
	assert.NotEmpty(t, config.Source.UserAgent)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadFromFileLocalDestination(t *testing.T) {
	path := writeConfigFile(t, `
[source]
base_url = "https://download.bls.gov/pub/time.series/pr/"

[destination]
type = "local"

[destination.local]
dir = "/var/lib/blsync/data"
`)

	config, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "local", config.Destination.Type)
	assert.Equal(t, "/var/lib/blsync/data", config.Destination.Local.Dir)
}

func TestValidationRejectsBadDestination(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "unknown destination type",
			content: `
[source]
base_url = "https://example.com/pub/"

[destination]
type = "ftp"
`,
		},
		{
			name: "s3 destination without bucket",
			content: `
[source]
base_url = "https://example.com/pub/"

[destination]
type = "s3"

[destination.s3]
region = "us-east-1"
`,
		},
		{
			name: "local destination without dir",
			content: `
[source]
base_url = "https://example.com/pub/"

[destination]
type = "local"
`,
		},
		{
			name: "malformed base url",
			content: `
[source]
base_url = "not a url"

[destination]
type = "s3"

[destination.s3]
bucket = "b"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfigFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("BLSYNC_SYNC_CONCURRENCY", "16")

	path := writeConfigFile(t, validS3Config)
	config, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 16, config.Sync.Concurrency)
}

func TestAWSRegionFallback(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-west-1")

	config := &Config{
		Destination: DestinationConfig{
			Type: "s3",
			S3:   &S3Config{Bucket: "b"},
		},
	}
	applyEnvFallbacks(config)
	assert.Equal(t, "eu-west-1", config.Destination.S3.Region)

	// An explicit region wins over the environment.
	config.Destination.S3.Region = "us-east-2"
	applyEnvFallbacks(config)
	assert.Equal(t, "us-east-2", config.Destination.S3.Region)
}

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "", NormalizePrefix(""))
	assert.Equal(t, "data/", NormalizePrefix("data"))
	assert.Equal(t, "data/", NormalizePrefix("data/"))
	assert.Equal(t, "a/b/", NormalizePrefix("a/b"))
}

func TestDefaultIsFlagFriendly(t *testing.T) {
	config, err := Default()
	require.NoError(t, err)

	// Unvalidated on purpose; a CLI fills these from flags before Finalize.
	assert.Empty(t, config.Source.BaseURL)
	assert.Equal(t, 8, config.Sync.Concurrency)

	config.Source.BaseURL = "https://example.com/pub"
	config.Destination.Type = "local"
	config.Destination.Local = &LocalConfig{Dir: "/tmp/dest", Prefix: "data"}
	require.NoError(t, Finalize(config))
	assert.Equal(t, "https://example.com/pub/", config.Source.BaseURL)
	assert.Equal(t, "data/", config.Destination.Local.Prefix)
}
