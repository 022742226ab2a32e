package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// BucketStore uploads objects to a hosted storage bucket over its REST API:
// objects are POSTed to {base}/storage/v1/object/{bucket}/{path} and are
// publicly readable at {base}/storage/v1/object/public/{bucket}/{path}.
type BucketStore struct {
	baseURL    string
	bucket     string
	apiKey     string
	httpClient *http.Client
}

type BucketConfig struct {
	URL     string
	Bucket  string
	APIKey  string
	Timeout time.Duration
}

func NewBucketStore(cfg BucketConfig) (*BucketStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("bucket url is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BucketStore{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		bucket:     cfg.Bucket,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// BucketError is returned when the bucket API responds with a failure status.
type BucketError struct {
	StatusCode int
	Message    string
}

func (e *BucketError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("bucket error: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("bucket error: status %d", e.StatusCode)
}

func (s *BucketStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	reqURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, strings.TrimLeft(path, "/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	s.setHeaders(req)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "http request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode >= 400 {
		return errors.WithStack(parseBucketError(resp.StatusCode, body))
	}
	return nil
}

func (s *BucketStore) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, strings.TrimLeft(path, "/"))
}

func (s *BucketStore) setHeaders(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func parseBucketError(status int, body []byte) *BucketError {
	var errResp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	bucketErr := &BucketError{StatusCode: status}
	if err := json.Unmarshal(body, &errResp); err == nil {
		bucketErr.Message = errResp.Message
		if bucketErr.Message == "" {
			bucketErr.Message = errResp.Error
		}
	}
	return bucketErr
}
