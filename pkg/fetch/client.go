package fetch

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"blsync/pkg/logger"
)

// StatusError reports a non-success HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

// IsRetryable treats transport-level failures and server-side statuses as
// transient. Client errors (4xx other than 429) are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// Client is the HTTP client for the remote source. Every request carries a
// descriptive User-Agent; some government hosts reject anonymous clients
// with 403.
type Client struct {
	httpClient *http.Client
	userAgent  string
	retry      RetryPolicy
	logger     *logger.Logger
}

type ClientOptions struct {
	UserAgent string
	Timeout   time.Duration
	Retry     RetryPolicy
	Logger    *logger.Logger
}

func NewClient(opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDefault()
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		userAgent:  opts.UserAgent,
		retry:      opts.Retry,
		logger:     opts.Logger,
	}
}

func (c *Client) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// Get issues a single GET without retries. The caller owns the body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, url)
}

// Head issues a single HEAD and returns the response headers.
func (c *Client) Head(ctx context.Context, url string) (http.Header, error) {
	resp, err := c.do(ctx, http.MethodHead, url)
	if err != nil {
		return nil, err
	}
	_ = resp.Body.Close()
	return resp.Header, nil
}

// Payload is a fully downloaded file body with its streaming content
// fingerprint: hex for provenance metadata, base64 for upload integrity.
type Payload struct {
	Body      []byte
	MD5Hex    string
	MD5Base64 string
	Length    int64
}

// Download fetches url through the retry policy, hashing the body as it is
// consumed. A failed attempt discards any partial body and starts over.
func (c *Client) Download(ctx context.Context, url string) (*Payload, error) {
	var payload *Payload

	attempt := 0
	err := c.retry.Do(ctx, func() error {
		attempt++
		resp, err := c.Get(ctx, url)
		if err != nil {
			c.logger.Warn("download attempt failed", map[string]any{
				"url":     url,
				"attempt": attempt,
				"error":   err.Error(),
			})
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		hash := md5.New()
		var buf []byte
		if resp.ContentLength > 0 {
			buf = make([]byte, 0, resp.ContentLength)
		}

		chunk := make([]byte, 1<<20)
		var total int64
		for {
			n, readErr := resp.Body.Read(chunk)
			if n > 0 {
				hash.Write(chunk[:n])
				buf = append(buf, chunk[:n]...)
				total += int64(n)
			}
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				c.logger.Warn("download interrupted mid-stream", map[string]any{
					"url":     url,
					"attempt": attempt,
					"error":   readErr.Error(),
				})
				return readErr
			}
		}

		sum := hash.Sum(nil)
		payload = &Payload{
			Body:      buf,
			MD5Hex:    hex.EncodeToString(sum),
			MD5Base64: base64.StdEncoding.EncodeToString(sum),
			Length:    total,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}

	return payload, nil
}
