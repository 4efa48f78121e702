package s3

import (
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

type Config struct {
	Endpoint           string
	Region             string
	AccessKey          string
	SecretKey          string
	MaxRetries         int
	ReadTimeoutSeconds int
	ForcePathStyle     bool
}

// CreateS3Client builds the shared S3 client for a pass. When no static
// keys are configured the SDK default credential chain applies.
func CreateS3Client(config *Config) (*s3.S3, error) {
	readTimeout := time.Duration(config.ReadTimeoutSeconds) * time.Second
	if readTimeout <= 0 {
		readTimeout = 300 * time.Second
	}

	httpClient := &http.Client{
		Timeout: readTimeout,
		Transport: &http.Transport{
			ResponseHeaderTimeout: readTimeout,
			ExpectContinueTimeout: 5 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	retryer := client.DefaultRetryer{
		NumMaxRetries:    config.MaxRetries,
		MinRetryDelay:    time.Second,
		MaxRetryDelay:    30 * time.Second,
		MinThrottleDelay: time.Second,
		MaxThrottleDelay: 30 * time.Second,
	}

	awsConfig := &aws.Config{
		Region:           aws.String(config.Region),
		S3ForcePathStyle: aws.Bool(config.ForcePathStyle),
		HTTPClient:       httpClient,
		Retryer:          retryer,
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"",
		)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, err
	}

	return s3.New(sess), nil
}
