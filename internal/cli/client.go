package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/me/ringflow/internal/topology"
	"github.com/me/ringflow/pkg/model"
)

// Client talks to the RingFlow API and decodes its envelopes into typed results.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a RingFlow API client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
	}
}

// envelope is the response wrapper every endpoint returns.
type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *model.APIError `json:"error"`
}

// WaitingEntry is one row of the waiting pool listing.
type WaitingEntry struct {
	model.Instruction
	Score float64 `json:"score"`
	Fault string  `json:"fault,omitempty"`
}

// PathResult is the route the server resolves between two locations.
type PathResult struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Policy string `json:"policy"`
	topology.Route
}

// CompletionReport is the body of a status report.
type CompletionReport struct {
	Code      string     `json:"instruction_code"`
	Container string     `json:"container_code,omitempty"`
	From      string     `json:"location_from"`
	To        string     `json:"location_to"`
	Time      *time.Time `json:"time,omitempty"`
}

// Submit enqueues one instruction.
func (c *Client) Submit(ctx context.Context, req model.InstructionRequest) (model.Instruction, error) {
	return call[model.Instruction](ctx, c, http.MethodPost, "/api/v1/instructions/", req)
}

// SubmitBatch enqueues a batch in one transaction.
func (c *Client) SubmitBatch(ctx context.Context, reqs []model.InstructionRequest) (model.BatchResult, error) {
	return call[model.BatchResult](ctx, c, http.MethodPost, "/api/v1/instructions/batch", reqs)
}

// Cancel removes a waiting instruction. A started instruction yields a CONFLICT *model.APIError.
func (c *Client) Cancel(ctx context.Context, code string) (model.CancelResult, error) {
	return call[model.CancelResult](ctx, c, http.MethodDelete, "/api/v1/instructions/"+url.PathEscape(code), nil)
}

// Clear drops the waiting pool and returns the server's message.
func (c *Client) Clear(ctx context.Context) (string, error) {
	env, err := c.do(ctx, http.MethodDelete, "/api/v1/instructions/", nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// Waiting lists the pool, highest score first. limit <= 0 uses the server cap.
func (c *Client) Waiting(ctx context.Context, limit int) ([]WaitingEntry, error) {
	path := "/api/v1/instructions/waiting"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	return call[[]WaitingEntry](ctx, c, http.MethodGet, path, nil)
}

// Schedule runs one round. maxSlots <= 0 uses the server default.
func (c *Client) Schedule(ctx context.Context, maxSlots int) (*model.Schedule, error) {
	path := "/api/v1/instructions/schedule"
	if maxSlots > 0 {
		path += "?max=" + strconv.Itoa(maxSlots)
	}
	return call[*model.Schedule](ctx, c, http.MethodGet, path, nil)
}

// Complete reports a finished instruction.
func (c *Client) Complete(ctx context.Context, r CompletionReport) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/status", r)
	return err
}

// Path resolves the route between two locations. An empty policy uses the server's.
func (c *Client) Path(ctx context.Context, from, to, policy string) (PathResult, error) {
	q := url.Values{"from": {from}, "to": {to}}
	if policy != "" {
		q.Set("policy", policy)
	}
	return call[PathResult](ctx, c, http.MethodGet, "/api/v1/topology/path?"+q.Encode(), nil)
}

// Stats returns learned statistics whose key starts with prefix.
func (c *Client) Stats(ctx context.Context, prefix string) (map[string]model.Stat, error) {
	path := "/api/v1/stats"
	if prefix != "" {
		path += "?prefix=" + url.QueryEscape(prefix)
	}
	return call[map[string]model.Stat](ctx, c, http.MethodGet, path, nil)
}

// call performs a request and decodes the envelope's data into T.
func call[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var out T
	env, err := c.do(ctx, method, path, body)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return out, nil
}

// do sends the request and unwraps the envelope. An error envelope is
// returned as its *model.APIError.
func (c *Client) do(ctx context.Context, method, path string, body any) (*envelope, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.Logger.Debug("api call", "method", method, "path", path, "status", resp.StatusCode,
		"request_id", resp.Header.Get("X-Request-ID"), "duration", time.Since(start))

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%s %s: status %d, unreadable body: %w", method, path, resp.StatusCode, err)
	}
	if env.Error != nil {
		return nil, env.Error
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return &env, nil
}
