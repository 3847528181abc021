package mem0

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
	"strconv"
	"strings"
	"time"

	"github.com/localrivet/mem0mcp/internal/config"
	"github.com/localrivet/mem0mcp/internal/errortypes"
	"github.com/localrivet/mem0mcp/internal/telemetry"
)

// Remote operation names, used in errors, logs and metrics.
const (
	OpAdd    = "add"
	OpGetAll = "get_all"
	OpSearch = "search"
)

const (
	// DefaultPageSize is the page size requested by GetAll.
	DefaultPageSize = 50

	// DefaultSearchLimit is used when Search is called with a non-positive limit.
	DefaultSearchLimit = 3

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 8 << 20
)

// Options configures a Client beyond what the Config provides.
type Options struct {
	// HTTPClient defaults to a client without a timeout; cancellation comes
	// from the caller's context.
	HTTPClient *http.Client

	// UserAgent defaults to "mem0mcp".
	UserAgent string

	Logger  *slog.Logger
	Metrics *telemetry.MetricsCollector
}

// Client is a handle to the hosted memory API. It holds no per-call state
// and is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
	metrics    *telemetry.MetricsCollector
}

// NewClient creates a client from the API key and base URL in cfg.
func NewClient(cfg *config.Config, opts Options) (*Client, error) {
	if cfg == nil {
		return nil, errortypes.ConfigError(errors.New("nil config"), "cannot create memory client")
	}
	if strings.TrimSpace(cfg.Mem0.APIKey) == "" {
		return nil, errortypes.ConfigError(errors.New("api key is empty"), "cannot create memory client")
	}

	base, err := url.Parse(strings.TrimRight(cfg.Mem0.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		if err == nil {
			err = fmt.Errorf("%q is not an absolute URL", cfg.Mem0.BaseURL)
		}
		return nil, errortypes.ConfigError(err, "cannot create memory client").
			WithField("base_url", cfg.Mem0.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "mem0mcp"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    base,
		apiKey:     cfg.Mem0.APIKey,
		httpClient: httpClient,
		userAgent:  userAgent,
		logger:     logger.With("component", "mem0"),
		metrics:    opts.Metrics,
	}, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Add submits text for indexing under userID and category. Metadata is
// passed through untouched and may be nil.
func (c *Client) Add(ctx context.Context, text, userID string, category Category, metadata map[string]interface{}) (*AddResult, error) {
	payload := addRequest{
		UserID:   userID,
		Category: category,
		Messages: []Message{{Role: "user", Content: text}},
		Metadata: metadata,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errortypes.InternalError(err, "failed to encode add request")
	}

	respBody, err := c.do(ctx, OpAdd, http.MethodPost, "/memory", nil, body)
	if err != nil {
		return nil, err
	}

	events, err := decodeList[AddEvent](respBody)
	if err != nil {
		return nil, decodeError(OpAdd, err)
	}
	return &AddResult{Results: events}, nil
}

// GetAll lists the user's records in category, in the order the backend
// returns them. A user without records yields an empty slice.
func (c *Client) GetAll(ctx context.Context, userID string, category Category) ([]Record, error) {
	query := url.Values{}
	query.Set("user_id", userID)
	query.Set("category", string(category))
	query.Set("limit", strconv.Itoa(DefaultPageSize))
	query.Set("offset", "0")

	respBody, err := c.do(ctx, OpGetAll, http.MethodGet, "/memory", query, nil)
	if err != nil {
		return nil, err
	}

	records, err := decodeList[Record](respBody)
	if err != nil {
		return nil, decodeError(OpGetAll, err)
	}
	return records, nil
}

// Search returns up to limit records ranked by the backend's relevance scoring.
func (c *Client) Search(ctx context.Context, query, userID string, category Category, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("user_id", userID)
	params.Set("category", string(category))
	params.Set("limit", strconv.Itoa(limit))

	respBody, err := c.do(ctx, OpSearch, http.MethodGet, "/memory/search", params, nil)
	if err != nil {
		return nil, err
	}

	records, err := decodeList[Record](respBody)
	if err != nil {
		return nil, decodeError(OpSearch, err)
	}
	return records, nil
}

// do issues one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body []byte) (respBody []byte, err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveCall(telemetry.MetricRemoteCalls, telemetry.MetricRemoteFailures,
			telemetry.MetricRemoteLatency, op, time.Since(start), err != nil)
	}()

	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, errortypes.InternalError(err, "failed to build memory API request").WithField("op", op)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("Calling memory API", "op", op, "method", method, "path", u.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	respBody, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(op, resp, respBody)
	}

	c.logger.Debug("Memory API call succeeded", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))
	return respBody, nil
}
