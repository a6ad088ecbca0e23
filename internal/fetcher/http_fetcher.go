package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	_maxImageSize = 10 * 1024 * 1024 // 10 MB
	_retryMax     = 2
)

// HTTPFetcher handles downloading artwork from HTTP/HTTPS URLs
type HTTPFetcher struct {
	logger *zap.Logger
	client *retryablehttp.Client
}

// NewHTTPFetcher creates a new HTTP-based fetcher instance
func NewHTTPFetcher(logger *zap.Logger) *HTTPFetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = _retryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = 10 * time.Second // Artwork is best-effort, never block for long
	client.Logger = &leveledLogger{sugar: logger.Sugar()}

	return &HTTPFetcher{
		logger: logger,
		client: client,
	}
}

// Fetch downloads image data from the given URL
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("unsupported artwork url: %q", url)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "notchd/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		return nil, fmt.Errorf("url is not an image: %s", resp.Header.Get("Content-Type"))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, _maxImageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	f.logger.Debug("Image fetched successfully", zap.Int("bytes", len(data)), zap.String("url", url))
	return data, nil
}

// leveledLogger routes retryablehttp logs into zap
type leveledLogger struct {
	sugar *zap.SugaredLogger
}

func (l *leveledLogger) Error(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }
func (l *leveledLogger) Info(msg string, kv ...interface{})  { l.sugar.Debugw(msg, kv...) }
func (l *leveledLogger) Debug(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *leveledLogger) Warn(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
