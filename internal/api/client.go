// Package api is the HTTP client for the task backend's task-list and chat
// endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskchat/taskchat/internal/observability"
)

// DefaultTimeout matches the backend's slowest agent responses.
const DefaultTimeout = 30 * time.Second

// Task is one entry of GET /tasks/.
type Task struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// chatRequest is the body of both chat endpoints.
type chatRequest struct {
	Message string `json:"message"`
}

// TokenSource supplies the bearer token for each call. An empty token means
// the request is sent without an Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithTimeout overrides the request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *observability.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// Client talks to the backend REST API.
type Client struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
	log     *observability.Logger
}

// NewClient creates a client for baseURL. tokens may be nil.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  &http.Client{Timeout: DefaultTimeout},
		log:     observability.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string { return c.baseURL }

// ListTasks fetches the current user's tasks in server order.
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	body, err := c.do(ctx, http.MethodGet, "/tasks/", nil)
	if err != nil {
		return nil, err
	}
	var tasks []Task
	if err := json.Unmarshal(body, &tasks); err != nil {
		return nil, fmt.Errorf("api: decode tasks: %w", err)
	}
	return tasks, nil
}

// ChatAppGuide posts message to the app-guide assistant and returns the raw
// response payload.
func (c *Client) ChatAppGuide(ctx context.Context, message string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, "/tasks/app-guide/chat", chatRequest{Message: message})
}

// ChatTask posts message to the assistant of task taskID and returns the raw
// response payload.
func (c *Client) ChatTask(ctx context.Context, taskID int, message string) ([]byte, error) {
	path := "/tasks/" + strconv.Itoa(taskID) + "/chat"
	return c.do(ctx, http.MethodPost, path, chatRequest{Message: message})
}

// do performs one request. Non-2xx responses become *StatusError; failures
// before a response arrives become *TransportError.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("api: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("api: create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("api: load token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: fmt.Errorf("read response: %w", err)}
	}
	c.log.Request(method, path, resp.StatusCode, time.Since(start).Milliseconds(), "request_id", requestID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method: method,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   respBody,
		}
	}
	return respBody, nil
}
