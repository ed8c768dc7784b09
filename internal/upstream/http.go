package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/me/ringflow/internal/tracing"
)

// Default client settings.
const (
	DefaultTimeout    = 3 * time.Second
	DefaultMaxRetries = 1
	DefaultRetryDelay = 200 * time.Millisecond
)

// HTTPConfig configures the HTTP release authority.
type HTTPConfig struct {
	// URL receives the form-encoded release query.
	URL string

	// Timeout bounds each attempt.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts for retryable failures.
	MaxRetries int

	// RetryDelay is the initial backoff, doubled per attempt.
	RetryDelay time.Duration
}

// DefaultHTTPConfig returns defaults for url.
func DefaultHTTPConfig(url string) HTTPConfig {
	return HTTPConfig{
		URL:        url,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
	}
}

// releaseReply is the upstream's JSON envelope.
type releaseReply struct {
	ResponseCode    int    `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
	Status          *bool  `json:"status"`
}

// HTTPAuthority queries an upstream HTTP endpoint with a form POST of
// locationFrom and locationTo. A reply with responseCode 0 carries the
// decision in status, which defaults to true when omitted.
type HTTPAuthority struct {
	httpClient *http.Client
	config     HTTPConfig
	logger     *slog.Logger
}

// NewHTTPAuthority creates an HTTPAuthority.
func NewHTTPAuthority(cfg HTTPConfig, logger *slog.Logger) *HTTPAuthority {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HTTPAuthority{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     logger.With("component", "upstream"),
	}
}

// MayRelease asks the upstream whether the move from -> to may start.
func (a *HTTPAuthority) MayRelease(ctx context.Context, from, to string) (ok bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "upstream.MayRelease", "CLIENT")
	span.WithAttributes(map[string]string{"location_from": from, "location_to": to})
	defer func() { tracing.EndSpan(span, err) }()

	form := url.Values{}
	form.Set("locationFrom", from)
	form.Set("locationTo", to)
	body := form.Encode()

	logger := a.logger.With("location_from", from, "location_to", to)

	var lastErr error
	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := a.config.RetryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			logger.Debug("retrying after delay", "attempt", attempt, "delay", delay)

			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(delay):
			}
		}

		reply, err := a.doRequest(ctx, body)
		if err != nil {
			lastErr = err
			if !IsRetryable(err) {
				return false, err
			}
			logger.Debug("query failed, will retry", "error", err, "attempt", attempt)
			continue
		}

		if reply.ResponseCode != 0 {
			return false, &ResponseError{Code: reply.ResponseCode, Message: reply.ResponseMessage}
		}
		if reply.Status == nil {
			return true, nil
		}
		return *reply.Status, nil
	}

	return false, fmt.Errorf("all retries exhausted: %w", lastErr)
}

// doRequest performs a single form POST and decodes the reply.
func (a *HTTPAuthority) doRequest(ctx context.Context, body string) (*releaseReply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var reply releaseReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	return &reply, nil
}
