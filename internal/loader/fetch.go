package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"retailcli/internal/errors"
)

// maxWorkbookBytes caps a remote download.
const maxWorkbookBytes = 256 << 20

// Fetcher downloads workbooks with a single GET. There is no retry.
type Fetcher struct {
	client   *http.Client
	logger   *slog.Logger
	maxBytes int64
}

// NewFetcher creates a fetcher. A nil client gets one with the given timeout.
func NewFetcher(client *http.Client, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:   client,
		logger:   logger.With(slog.String("component", "fetcher")),
		maxBytes: maxWorkbookBytes,
	}
}

// Fetch downloads rawURL. Transport errors, non-2xx statuses and bodies over
// the size cap are SOURCE_UNAVAILABLE errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	target := NormalizeShareURL(rawURL)
	desc := redactURL(target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.NewSourceUnavailableError(desc, err)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.NewSourceUnavailableError(desc, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewSourceUnavailableError(desc, fmt.Errorf("unexpected status %d", resp.StatusCode)).
			WithContext("status", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, errors.NewSourceUnavailableError(desc, fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > f.maxBytes {
		return nil, errors.NewSourceUnavailableError(desc, fmt.Errorf("workbook too large: over %d bytes", f.maxBytes)).
			WithContext("max_bytes", f.maxBytes)
	}

	f.logger.InfoContext(ctx, "workbook downloaded",
		slog.String("source", desc),
		slog.Int("bytes", len(body)),
		slog.Duration("duration", time.Since(start)))
	return body, nil
}

// SourceCheck is the outcome of a connection check.
type SourceCheck struct {
	URL         string        `json:"url"`
	Reachable   bool          `json:"reachable"`
	StatusCode  int           `json:"status_code,omitempty"`
	ContentType string        `json:"content_type,omitempty"`
	Latency     time.Duration `json:"latency_ns"`
	Error       string        `json:"error,omitempty"`
}

// Check issues a HEAD request to check that rawURL answers with a 2xx.
// Transport failures are reported in the result rather than as an error.
func (f *Fetcher) Check(ctx context.Context, rawURL string) (*SourceCheck, error) {
	target := NormalizeShareURL(rawURL)
	result := &SourceCheck{URL: redactURL(target)}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return nil, errors.NewAppValidationError(fmt.Sprintf("invalid url: %v", err))
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.ContentType = resp.Header.Get("Content-Type")
	result.Reachable = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !result.Reachable {
		result.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return result, nil
}
