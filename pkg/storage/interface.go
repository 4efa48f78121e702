package storage

import (
	"context"
	"errors"
	"fmt"
)

// ObjectStore is the destination side of a sync pass. Implementations must
// treat a missing object as a normal Head result (Exists=false), not an
// error; the sync engine heads every candidate key on every pass.
type ObjectStore interface {
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte, opts *PutOptions) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string, fn func(key string) error) error
	GetTags(ctx context.Context, key string) (map[string]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// ObjectInfo describes one stored object. Metadata keys are normalized to
// lower case so provenance lookups are backend-independent.
type ObjectInfo struct {
	Exists   bool
	Size     int64
	ETag     string
	Metadata map[string]string
}

type PutOptions struct {
	ContentType string
	ContentMD5  string
	Metadata    map[string]string
	Tags        map[string]string
}

type BackendType string

const (
	BackendTypeS3    BackendType = "s3"
	BackendTypeLocal BackendType = "local"
)

type StorageError struct {
	Type    ErrorType
	Message string
	Cause   error
}

type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeAccessDenied ErrorType = "access_denied"
	ErrorTypeNetworkError ErrorType = "network_error"
	ErrorTypeInternal     ErrorType = "internal_error"
	ErrorTypeInvalidInput ErrorType = "invalid_input"
)

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		return false
	}

	switch storageErr.Type {
	case ErrorTypeNetworkError:
		return true
	case ErrorTypeInternal:
		return true
	case ErrorTypeNotFound, ErrorTypeAccessDenied, ErrorTypeInvalidInput:
		return false
	default:
		return false
	}
}

func IsNotFound(err error) bool {
	var storageErr *StorageError
	return errors.As(err, &storageErr) && storageErr.Type == ErrorTypeNotFound
}
