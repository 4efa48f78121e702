package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
)

type S3Backend struct {
	client *s3.S3
	bucket string
}

type S3Config struct {
	Endpoint           string
	Region             string
	Bucket             string
	AccessKey          string
	SecretKey          string
	MaxRetries         int
	ReadTimeoutSeconds int
	ForcePathStyle     bool
}

func NewS3Backend(s3Client *s3.S3, bucket string) *S3Backend {
	return &S3Backend{
		client: s3Client,
		bucket: bucket,
	}
}

func (s *S3Backend) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	headResp, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case "NoSuchKey", "NotFound":
				return &ObjectInfo{Exists: false}, nil
			case "Forbidden", "AccessDenied":
				return nil, &StorageError{
					Type:    ErrorTypeAccessDenied,
					Message: "access denied to head object",
					Cause:   err,
				}
			}
		}
		return nil, &StorageError{
			Type:    ErrorTypeNetworkError,
			Message: "failed to head object",
			Cause:   err,
		}
	}

	info := &ObjectInfo{
		Exists:   true,
		Metadata: make(map[string]string),
	}
	if headResp.ContentLength != nil {
		info.Size = *headResp.ContentLength
	}
	if headResp.ETag != nil {
		info.ETag = strings.Trim(*headResp.ETag, `"`)
	}
	// HTTP header canonicalization capitalizes metadata keys on the way
	// back; normalize so lookups match what was written.
	for k, v := range headResp.Metadata {
		if v != nil {
			info.Metadata[strings.ToLower(k)] = *v
		}
	}

	return info, nil
}

func (s *S3Backend) Get(ctx context.Context, key string) ([]byte, error) {
	getResp, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.convertS3Error(err)
	}
	defer func() {
		_ = getResp.Body.Close()
	}()

	data, err := io.ReadAll(getResp.Body)
	if err != nil {
		return nil, &StorageError{
			Type:    ErrorTypeNetworkError,
			Message: "failed to read object body",
			Cause:   err,
		}
	}
	return data, nil
}

func (s *S3Backend) Put(ctx context.Context, key string, body []byte, opts *PutOptions) error {
	if opts == nil {
		opts = &PutOptions{}
	}

	putInput := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}

	if opts.ContentType != "" {
		putInput.ContentType = aws.String(opts.ContentType)
	}
	if opts.ContentMD5 != "" {
		putInput.ContentMD5 = aws.String(opts.ContentMD5)
	}
	if len(opts.Metadata) > 0 {
		putInput.Metadata = aws.StringMap(opts.Metadata)
	}
	if len(opts.Tags) > 0 {
		putInput.Tagging = aws.String(encodeTags(opts.Tags))
	}

	if _, err := s.client.PutObjectWithContext(ctx, putInput); err != nil {
		return s.convertS3Error(err)
	}
	return nil
}

func (s *S3Backend) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s.convertS3Error(err)
	}
	return nil
}

func (s *S3Backend) List(ctx context.Context, prefix string, fn func(key string) error) error {
	var walkErr error
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			if walkErr = fn(*obj.Key); walkErr != nil {
				return false
			}
		}
		return true
	})
	if walkErr != nil {
		return walkErr
	}
	if err != nil {
		return s.convertS3Error(err)
	}
	return nil
}

func (s *S3Backend) GetTags(ctx context.Context, key string) (map[string]string, error) {
	resp, err := s.client.GetObjectTaggingWithContext(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.convertS3Error(err)
	}

	tags := make(map[string]string, len(resp.TagSet))
	for _, tag := range resp.TagSet {
		if tag.Key != nil && tag.Value != nil {
			tags[*tag.Key] = *tag.Value
		}
	}
	return tags, nil
}

// Ping verifies the bucket endpoint is reachable before a pass starts.
func (s *S3Backend) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return s.convertS3Error(err)
	}
	return nil
}

func (s *S3Backend) Close() error {
	return nil
}

func encodeTags(tags map[string]string) string {
	values := url.Values{}
	for k, v := range tags {
		values.Set(k, v)
	}
	return values.Encode()
}

func (s *S3Backend) convertS3Error(err error) error {
	if err == nil {
		return nil
	}

	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case "NoSuchBucket", "NoSuchKey", "NotFound":
			return &StorageError{
				Type:    ErrorTypeNotFound,
				Message: "resource not found",
				Cause:   err,
			}
		case "AccessDenied", "Forbidden":
			return &StorageError{
				Type:    ErrorTypeAccessDenied,
				Message: "access denied",
				Cause:   err,
			}
		case "RequestTimeout", "RequestError", "ServiceUnavailable", "Throttling", "ThrottlingException":
			return &StorageError{
				Type:    ErrorTypeNetworkError,
				Message: "service temporarily unavailable",
				Cause:   err,
			}
		default:
			if strings.Contains(strings.ToLower(aerr.Message()), "timeout") {
				return &StorageError{
					Type:    ErrorTypeNetworkError,
					Message: "request timeout",
					Cause:   err,
				}
			}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &StorageError{
			Type:    ErrorTypeNetworkError,
			Message: "request deadline exceeded",
			Cause:   err,
		}
	}

	return &StorageError{
		Type:    ErrorTypeInternal,
		Message: "internal storage error",
		Cause:   err,
	}
}
