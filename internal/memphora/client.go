// Package memphora is the HTTP client for the Memphora memory API.
package memphora

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
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/memphora/memphora-mcp/internal/errortypes"
	"github.com/memphora/memphora-mcp/internal/telemetry"
)

const (
	// Environment variables consulted when an option is left empty.
	EnvAPIKey = "MEMPHORA_API_KEY"
	EnvAPIURL = "MEMPHORA_API_URL"
	EnvUserID = "MEMPHORA_USER_ID"

	DefaultAPIURL  = "https://memphora-backend-h7h5s5lkza-uc.a.run.app"
	DefaultUserID  = "mcp_default_user"
	APIBasePath    = "/api/v1"
	DefaultTimeout = 30 * time.Second

	// HealthCheckTimeout is fixed so liveness checks fail fast regardless of
	// the general timeout.
	HealthCheckTimeout = 5 * time.Second

	DefaultSearchLimit   = 5
	DefaultMinSimilarity = 0.3
	DefaultListLimit     = 100

	Version   = "0.1.1"
	userAgent = "memphora-mcp/" + Version

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 10 << 20
)

// ErrMissingAPIKey is the cause of the error New returns when no API key is
// configured.
var ErrMissingAPIKey = errors.New("API key required")

// Options configures a Client. Empty string fields fall back to the
// corresponding environment variable and then to the built-in default.
type Options struct {
	APIKey     string
	APIURL     string
	UserID     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Metrics    *telemetry.MetricsCollector
	Logger     *slog.Logger
}

// Client talks to the Memphora API. It is configured once and holds no
// per-call state, so one instance can be shared by concurrent callers.
type Client struct {
	apiKey     string
	baseURL    string
	userID     string
	timeout    time.Duration
	httpClient *http.Client
	metrics    *telemetry.MetricsCollector
	logger     *slog.Logger
}

// New creates a Client. It fails with a configuration error when no API key
// is given and MEMPHORA_API_KEY is unset.
func New(opts Options) (*Client, error) {
	apiKey := firstNonEmpty(opts.APIKey, os.Getenv(EnvAPIKey))
	if apiKey == "" {
		return nil, errortypes.ConfigError(
			ErrMissingAPIKey,
			"Memphora API key required. Set "+EnvAPIKey+" environment variable or pass an API key",
		)
	}

	baseURL, err := normalizeBaseURL(firstNonEmpty(opts.APIURL, os.Getenv(EnvAPIURL), DefaultAPIURL))
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewMetricsCollector()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		userID:     firstNonEmpty(opts.UserID, os.Getenv(EnvUserID), DefaultUserID),
		timeout:    timeout,
		httpClient: httpClient,
		metrics:    metrics,
		logger:     logger.With("component", "memphora_client"),
	}, nil
}

// APIKey returns the effective API key.
func (c *Client) APIKey() string { return c.apiKey }

// BaseURL returns the effective base URL, including the /api/v1 base path.
func (c *Client) BaseURL() string { return c.baseURL }

// UserID returns the default user scope.
func (c *Client) UserID() string { return c.userID }

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Metrics returns the collector the client records into.
func (c *Client) Metrics() *telemetry.MetricsCollector { return c.metrics }

// Headers returns the headers attached to every request.
func (c *Client) Headers() http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+c.apiKey)
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", userAgent)
	return h
}

// Search finds memories relevant to query. A limit <= 0 uses
// DefaultSearchLimit and a negative minSimilarity uses DefaultMinSimilarity.
func (c *Client) Search(ctx context.Context, query, userID string, limit int, minSimilarity float64) (*SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if minSimilarity < 0 {
		minSimilarity = DefaultMinSimilarity
	}

	body, err := c.do(ctx, "search", http.MethodPost, "/memories/search", nil, map[string]interface{}{
		"user_id":        c.scope(userID),
		"query":          query,
		"limit":          limit,
		"min_similarity": minSimilarity,
	})
	if err != nil {
		return nil, err
	}

	list, err := decodeMemoryList(body)
	if err != nil {
		return nil, errortypes.ExternalError(err, "failed to decode search response")
	}

	return &SearchResult{
		Query:      query,
		Memories:   list.Memories,
		SearchPath: list.SearchPath,
		LatencyMS:  list.LatencyMS,
	}, nil
}

// Store saves a new memory. A nil metadata map is sent as {}.
func (c *Client) Store(ctx context.Context, content, userID string, metadata map[string]interface{}) (map[string]interface{}, error) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return c.doObject(ctx, "store", http.MethodPost, "/memories", nil, map[string]interface{}{
		"user_id":  c.scope(userID),
		"content":  content,
		"metadata": metadata,
	})
}

// ExtractConversation asks the service to extract memories from a
// conversation and returns its summary unmodified.
func (c *Client) ExtractConversation(ctx context.Context, conversation []Message, userID string) (map[string]interface{}, error) {
	if conversation == nil {
		conversation = []Message{}
	}
	return c.doObject(ctx, "extract", http.MethodPost, "/conversations/extract", nil, map[string]interface{}{
		"user_id":      c.scope(userID),
		"conversation": conversation,
	})
}

// ListMemories returns the stored memories for a user scope. A limit <= 0
// uses DefaultListLimit.
func (c *Client) ListMemories(ctx context.Context, userID string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := url.Values{}
	query.Set("user_id", c.scope(userID))
	query.Set("limit", strconv.Itoa(limit))

	body, err := c.do(ctx, "list", http.MethodGet, "/memories", query, nil)
	if err != nil {
		return nil, err
	}

	list, err := decodeMemoryList(body)
	if err != nil {
		return nil, errortypes.ExternalError(err, "failed to decode memory list response")
	}
	return list.Memories, nil
}

// DeleteMemory removes one memory. An empty memoryID is rejected before any
// request is made.
func (c *Client) DeleteMemory(ctx context.Context, memoryID, userID string) (map[string]interface{}, error) {
	if strings.TrimSpace(memoryID) == "" {
		return nil, errortypes.ValidationError(errors.New("memory ID is empty"), "cannot delete memory")
	}

	query := url.Values{}
	query.Set("user_id", c.scope(userID))

	return c.doObject(ctx, "delete", http.MethodDelete, "/memories/"+url.PathEscape(memoryID), query, nil)
}

// UserSummary returns aggregate statistics for a user scope.
func (c *Client) UserSummary(ctx context.Context, userID string) (map[string]interface{}, error) {
	return c.doObject(ctx, "summary", http.MethodGet, "/users/"+url.PathEscape(c.scope(userID))+"/summary", nil, nil)
}

// HealthCheck calls the liveness endpoint. Any failure, including a
// timeout or a non-200 status, is reported as false.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health/live", nil)
	if err != nil {
		c.metrics.IncrementCounter(telemetry.MetricHealthCheckFailure, 1)
		return false
	}
	req.Header = c.Headers()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Health check failed", "error", err)
		c.metrics.IncrementCounter(telemetry.MetricHealthCheckFailure, 1)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("Health check returned non-200 status", "status", resp.StatusCode)
		c.metrics.IncrementCounter(telemetry.MetricHealthCheckFailure, 1)
		return false
	}
	return true
}

func (c *Client) doObject(ctx context.Context, endpoint, method, path string, query url.Values, payload interface{}) (map[string]interface{}, error) {
	body, err := c.do(ctx, endpoint, method, path, query, payload)
	if err != nil {
		return nil, err
	}
	out, err := decodeObject(body)
	if err != nil {
		return nil, errortypes.ExternalError(err, fmt.Sprintf("failed to decode %s response", endpoint)).
			WithField("endpoint", endpoint)
	}
	return out, nil
}

// do issues one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	start := time.Now()
	body, err := c.roundTrip(ctx, method, path, query, payload)
	c.metrics.RecordTimer(telemetry.RemoteMetric(telemetry.MetricRemoteLatency, endpoint), time.Since(start))

	if err != nil {
		c.metrics.IncrementCounter(telemetry.MetricRemoteCallsFailure, 1)
		c.logger.Debug("Memphora API call failed", "endpoint", endpoint, "error", err)
		return nil, err
	}

	c.metrics.IncrementCounter(telemetry.MetricRemoteCallsSuccess, 1)
	c.logger.Debug("Memphora API call succeeded", "endpoint", endpoint, "duration", time.Since(start))
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errortypes.InternalError(err, "failed to encode request body")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, errortypes.InternalError(err, "failed to create request")
	}
	req.Header = c.Headers()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errortypes.TransportError(err, "request to Memphora API failed").
			WithField("method", method).
			WithField("path", path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errortypes.TransportError(err, "failed to read Memphora API response").
			WithField("path", path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errortypes.RemoteServiceError(resp.StatusCode, string(respBody)).
			WithField("method", method).
			WithField("path", path)
	}

	return respBody, nil
}

func (c *Client) scope(userID string) string {
	if userID == "" {
		return c.userID
	}
	return userID
}

// normalizeBaseURL trims trailing slashes and appends the /api/v1 base path
// unless the URL already ends with it.
func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("missing scheme or host")
		}
		return "", errortypes.ConfigError(err, "invalid Memphora API URL").WithField("url", raw)
	}
	if !strings.HasSuffix(trimmed, APIBasePath) {
		trimmed += APIBasePath
	}
	return trimmed, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
