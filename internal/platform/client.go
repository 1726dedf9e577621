// Package platform implements the scraping platform API collaborators: run metadata,
// result listings, job invocation and key-value records.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-validator/internal/metrics"
	"github.com/JakeFAU/crawl-validator/internal/policy/ratelimit"
	"github.com/JakeFAU/crawl-validator/internal/validation"
)

const maxErrorBody = 512

// Config captures the parameters required to talk to the platform API.
type Config struct {
	APIBaseURL    string
	LegacyBaseURL string
	Token         string
	Timeout       time.Duration
	// RatePerSecond throttles outgoing requests; zero disables throttling.
	RatePerSecond float64
	Burst         int
}

// APIError is returned for non-2xx platform responses.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform %s: status %d: %s", e.Operation, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 APIError.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client calls the platform REST API.
type Client struct {
	httpClient *http.Client
	apiBase    string
	legacyBase string
	token      string
	limiter    *ratelimit.Limiter
	logger     *zap.Logger
}

// New builds a Client with its own http.Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewWithHTTPClient(cfg, &http.Client{Timeout: timeout}, logger)
}

// NewWithHTTPClient builds a Client around an existing http.Client (primarily for testing).
func NewWithHTTPClient(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	apiBase := strings.TrimRight(cfg.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = validation.DefaultAPIBaseURL
	}
	legacyBase := strings.TrimRight(cfg.LegacyBaseURL, "/")
	if legacyBase == "" {
		legacyBase = validation.DefaultLegacyBaseURL
	}
	for _, base := range []string{apiBase, legacyBase} {
		if _, err := url.ParseRequestURI(base); err != nil {
			return nil, fmt.Errorf("invalid platform base url %q: %w", base, err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *ratelimit.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = ratelimit.New(ratelimit.Config{RatePerSecond: cfg.RatePerSecond, Burst: cfg.Burst})
	}
	return &Client{
		httpClient: httpClient,
		apiBase:    apiBase,
		legacyBase: legacyBase,
		token:      cfg.Token,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *Client) do(
	ctx context.Context,
	operation, method, endpoint string,
	contentType string,
	body []byte,
) (response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return response{}, fmt.Errorf("platform %s: wait for rate limiter: %w", operation, err)
		}
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return response{}, fmt.Errorf("platform %s: build request: %w", operation, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("platform %s: %w", operation, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close response body failed", zap.String("operation", operation), zap.Error(cerr))
		}
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("platform %s: read body: %w", operation, err)
	}
	metrics.ObservePlatformRequest(operation, resp.StatusCode)
	c.logger.Debug("platform request",
		zap.String("operation", operation),
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return response{}, &APIError{Operation: operation, StatusCode: resp.StatusCode, Message: msg}
	}
	return response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func (c *Client) getJSON(ctx context.Context, operation, endpoint string, dest any) (http.Header, error) {
	resp, err := c.do(ctx, operation, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(resp.body, dest); err != nil {
		return nil, fmt.Errorf("platform %s: decode response: %w", operation, err)
	}
	return resp.header, nil
}

func (c *Client) apiURL(query url.Values, segments ...string) string {
	return buildURL(c.apiBase, query, segments...)
}

func (c *Client) legacyURL(query url.Values, segments ...string) string {
	return buildURL(c.legacyBase, query, segments...)
}

func buildURL(base string, query url.Values, segments ...string) string {
	var b strings.Builder
	b.WriteString(base)
	for _, seg := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(seg))
	}
	if len(query) > 0 {
		b.WriteByte('?')
		b.WriteString(query.Encode())
	}
	return b.String()
}

func pageQuery(offset, limit int, extra map[string]string) url.Values {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	for k, v := range extra {
		q.Set(k, v)
	}
	return q
}

// pageFromHeaders builds a Page from a listing body and its pagination headers.
// Missing headers fall back to the decoded item count.
func pageFromHeaders(header http.Header, prefix string, offset int, items []any) validation.Page {
	count, ok := headerInt(header, prefix+"-Count")
	if !ok {
		count = len(items)
	}
	total, ok := headerInt(header, prefix+"-Total")
	if !ok {
		total = offset + count
	}
	return validation.Page{Total: total, Count: count, Items: items}
}

func headerInt(header http.Header, key string) (int, bool) {
	raw := strings.TrimSpace(header.Get(key))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
