// Package client provides an HTTP client for a remote speedctl API.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"grimm.is/speedctl/internal/brand"
	"grimm.is/speedctl/internal/dispatch"
	"grimm.is/speedctl/internal/health"
	"grimm.is/speedctl/internal/operation"
)

const servicePrefix = "/api/speedtest/service/"

// ErrRateLimited is returned when the API answers 429.
var ErrRateLimited = errors.New("rate limited")

// RateLimitError carries the server's Retry-After hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RemoteOperation mirrors one entry of GET /api/speedtest/operations.
// Defined locally to avoid importing the heavy internal/api package.
type RemoteOperation struct {
	operation.Operation
	Path        string `json:"path"`
	RateLimited bool   `json:"rate_limited"`
}

// errorResponse mirrors the API error body.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HTTPClient talks to a speedctl API server.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	registry   *operation.Registry
	userAgent  string
}

// ClientOption configures the HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// WithRegistry sets the registry used to map operation names to endpoints.
func WithRegistry(r *operation.Registry) ClientOption {
	return func(c *HTTPClient) {
		c.registry = r
	}
}

// NewHTTPClient creates a new HTTPClient for the given base URL. The default
// timeout outlasts the longest installation action.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 11 * time.Minute},
		registry:   operation.Default(),
		userAgent:  brand.UserAgent(brand.Version),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke runs an operation on the remote server and returns the worker
// payload. Errors use the dispatch taxonomy so callers can treat local and
// remote invocations alike.
func (c *HTTPClient) Invoke(name string, args ...string) (string, error) {
	op, err := c.registry.Lookup(name)
	if err != nil {
		// Let the server have the final word on unknown names.
		op = operation.Operation{Name: name, Command: name, Endpoint: name}
	}
	if len(args) > op.Arity() {
		return "", fmt.Errorf("%w: operation %s takes %d argument(s), got %d",
			dispatch.ErrArgumentMismatch, op.Name, op.Arity(), len(args))
	}

	var body any
	if op.Arity() > 0 {
		fields := make(map[string]string, len(args))
		for i, a := range args {
			fields[op.Params[i].Name] = a
		}
		body = fields
	}

	status, respBody, hdr, err := c.do(http.MethodPost, servicePrefix+url.PathEscape(op.Endpoint), body)
	if err != nil {
		return "", err
	}
	if status == http.StatusOK {
		return string(respBody), nil
	}
	return "", c.statusError(op, status, respBody, hdr)
}

// Operations lists the operations registered on the remote server.
func (c *HTTPClient) Operations() ([]RemoteOperation, error) {
	status, body, hdr, err := c.do(http.MethodGet, "/api/speedtest/operations", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.statusError(operation.Operation{}, status, body, hdr)
	}

	var resp struct {
		Operations []RemoteOperation `json:"operations"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.Operations, nil
}

// Health fetches the health report. An unhealthy server answers 503 with a
// report, which is returned without error.
func (c *HTTPClient) Health() (*health.Report, error) {
	status, body, hdr, err := c.do(http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusServiceUnavailable {
		return nil, c.statusError(operation.Operation{}, status, body, hdr)
	}

	var report health.Report
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("failed to decode health report: %w", err)
	}
	return &report, nil
}

// do performs an HTTP request and returns the raw response.
func (c *HTTPClient) do(method, path string, body any) (int, []byte, http.Header, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: request failed: %v", dispatch.ErrWorkerUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, respBody, resp.Header, nil
}

// statusError maps a non-200 response back onto the dispatch errors.
func (c *HTTPClient) statusError(op operation.Operation, status int, body []byte, hdr http.Header) error {
	msg := strings.TrimSpace(string(body))
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		msg = er.Error
		if er.Details != "" {
			msg += ": " + er.Details
		}
	}

	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", dispatch.ErrUnknownOperation, msg)
	case http.StatusBadRequest:
		if strings.Contains(er.Details, dispatch.ErrArgumentMismatch.Error()) {
			return fmt.Errorf("%w: %s", dispatch.ErrArgumentMismatch, msg)
		}
		return fmt.Errorf("%w: %s", dispatch.ErrInvalidArgument, msg)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", dispatch.ErrWorkerUnavailable, msg)
	case http.StatusBadGateway:
		// The body is the worker's payload, verbatim.
		return &dispatch.WorkerError{Command: op.Command, Payload: string(body)}
	case http.StatusTooManyRequests:
		secs, _ := strconv.Atoi(hdr.Get("Retry-After"))
		return &RateLimitError{RetryAfter: time.Duration(secs) * time.Second, Message: msg}
	default:
		return fmt.Errorf("API error (status %d): %s", status, msg)
	}
}
