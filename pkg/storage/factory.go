package storage

import (
	"fmt"

	"blsync/pkg/s3"
)

type StorageFactory struct{}

func NewStorageFactory() *StorageFactory {
	return &StorageFactory{}
}

func (f *StorageFactory) CreateS3Backend(config *S3Config) (ObjectStore, error) {
	if config == nil {
		return nil, fmt.Errorf("S3 configuration is required")
	}

	s3Client, err := s3.CreateS3Client(&s3.Config{
		Endpoint:           config.Endpoint,
		Region:             config.Region,
		AccessKey:          config.AccessKey,
		SecretKey:          config.SecretKey,
		MaxRetries:         config.MaxRetries,
		ReadTimeoutSeconds: config.ReadTimeoutSeconds,
		ForcePathStyle:     config.ForcePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return NewS3Backend(s3Client, config.Bucket), nil
}

func (f *StorageFactory) CreateLocalBackend(config *LocalConfig) (ObjectStore, error) {
	if config == nil {
		return nil, fmt.Errorf("local configuration is required")
	}
	return NewLocalBackend(config)
}
