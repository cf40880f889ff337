// Package submit posts record batches to the pharmacy API's bulk endpoints.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/pharmaimport/internal/core"
)

const (
	DefaultTimeout         = 60 * time.Second
	DefaultRequestIDHeader = "X-Request-Id"

	// maxErrorBody limits how much of a failed response ends up in errors.
	maxErrorBody = 512
)

// StatusError is a non-2xx answer without a batch response body.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// Config configures a Client.
type Config struct {
	BaseURL         string
	Token           string // sent as a bearer token when set
	Timeout         time.Duration
	RequestIDHeader string
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// Client implements core.Submitter over HTTP.
type Client struct {
	baseURL         *url.URL
	token           string
	requestIDHeader string
	httpClient      *http.Client
	log             *slog.Logger
}

var _ core.Submitter = (*Client)(nil)

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API base URL: %q", base)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	header := cfg.RequestIDHeader
	if header == "" {
		header = DefaultRequestIDHeader
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:         u,
		token:           strings.TrimSpace(cfg.Token),
		requestIDHeader: header,
		httpClient:      hc,
		log:             logger,
	}, nil
}

// batchEnvelope detects whether a body carries the expected summary.
type batchEnvelope struct {
	Summary *core.BatchSummary `json:"summary"`
	Errors  []core.RowError    `json:"errors"`
}

// SubmitBatch posts the batch payloads as a JSON array to def.Path. A
// response carrying a summary is returned as is, whatever its status; any
// other outcome is an error and counts as a failed batch.
func (c *Client) SubmitBatch(ctx context.Context, def core.Definition, batch core.Batch) (*core.BatchResponse, error) {
	body, err := json.Marshal(batch.Payloads())
	if err != nil {
		return nil, fmt.Errorf("json marshal batch: %w", err)
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(def.Path, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(c.requestIDHeader, reqID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http read: %w", err)
	}

	c.log.Debug("batch posted",
		"path", def.Path,
		"request_id", reqID,
		"records", batch.Len(),
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	var env batchEnvelope
	decodeErr := json.Unmarshal(respBody, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && env.Summary != nil {
			return &core.BatchResponse{Summary: *env.Summary, Errors: env.Errors}, nil
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(respBody)), maxErrorBody)}
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("json unmarshal response: %w", decodeErr)
	}
	if env.Summary == nil {
		return nil, errors.New("response has no summary")
	}
	return &core.BatchResponse{Summary: *env.Summary, Errors: env.Errors}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
