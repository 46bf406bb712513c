// Package remote implements the student store contract over HTTP.
//
// The contract service exposes:
//
//	GET    /students?page=N  -> {"items": [...], "hasNext": bool}
//	GET    /students/{id}    -> record
//	POST   /students         -> record
//	PUT    /students/{id}    -> record
//	DELETE /students/{id}
//	DELETE /students         -> {"deletedCount": n}
//
// Rejected values come back as 400 or 422 with
// {"errors": [{"field": ..., "message": ...}]}.
package remote

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

	"github.com/JonMunkholm/gradebook/internal/core"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// RetryConfig controls retry behaviour for transient failures.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries.
	MaxBackoff time.Duration

	// Multiplier is the factor applied to the backoff after each retry.
	Multiplier float64
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
	}
}

// Backoff returns the wait before retry number attempt (1-based).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return c.InitialBackoff
	}
	backoff := float64(c.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= c.Multiplier
	}
	if backoff > float64(c.MaxBackoff) {
		backoff = float64(c.MaxBackoff)
	}
	return time.Duration(backoff)
}

// CallObserver is notified after every logical call, retries included.
type CallObserver interface {
	RemoteCall(op string, d time.Duration, err error)
}

// Config configures a Client.
type Config struct {
	// BaseURL is the contract service root, e.g. http://host:8080/store.
	BaseURL string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	Retry RetryConfig

	// Observer receives call timings. Optional.
	Observer CallObserver

	// HTTPClient overrides the default client. Optional.
	HTTPClient *http.Client
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to a student store contract service.
type Client struct {
	base     string
	http     *http.Client
	retry    RetryConfig
	observer CallObserver
	logger   *slog.Logger
}

var _ core.Persistence = (*Client)(nil)

// New creates a Client. BaseURL is required.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("remote: base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("remote: invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = 0
	}
	if cfg.Retry.Multiplier < 1 {
		cfg.Retry.Multiplier = 1
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		http:     hc,
		retry:    cfg.Retry,
		observer: cfg.Observer,
		logger:   slog.With("component", "remote"),
	}, nil
}

type listResponse struct {
	Items   []core.StudentRecord `json:"items"`
	HasNext bool                 `json:"hasNext"`
}

type bulkDeleteResponse struct {
	DeletedCount int64 `json:"deletedCount"`
}

type errorResponse struct {
	Errors  []core.FieldError `json:"errors"`
	Message string            `json:"message"`
	Error   string            `json:"error"`
}

// List fetches one page. The page size is up to the service.
func (c *Client) List(ctx context.Context, page int) (core.ListPage, error) {
	var resp listResponse
	path := "/students?page=" + strconv.Itoa(page)
	if err := c.doRequest(ctx, "list", http.MethodGet, path, nil, &resp); err != nil {
		return core.ListPage{}, err
	}
	if resp.Items == nil {
		resp.Items = []core.StudentRecord{}
	}
	return core.ListPage{Items: resp.Items, HasNext: resp.HasNext}, nil
}

func (c *Client) Get(ctx context.Context, id string) (core.StudentRecord, error) {
	var r core.StudentRecord
	err := c.doRequest(ctx, "get", http.MethodGet, "/students/"+url.PathEscape(id), nil, &r)
	return r, err
}

func (c *Client) Create(ctx context.Context, f core.StudentFields) (core.StudentRecord, error) {
	var r core.StudentRecord
	err := c.doRequest(ctx, "create", http.MethodPost, "/students", f, &r)
	return r, err
}

func (c *Client) Update(ctx context.Context, id string, f core.StudentFields) (core.StudentRecord, error) {
	var r core.StudentRecord
	err := c.doRequest(ctx, "update", http.MethodPut, "/students/"+url.PathEscape(id), f, &r)
	return r, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.doRequest(ctx, "delete", http.MethodDelete, "/students/"+url.PathEscape(id), nil, nil)
}

func (c *Client) BulkDelete(ctx context.Context) (int64, error) {
	var resp bulkDeleteResponse
	if err := c.doRequest(ctx, "bulk_delete", http.MethodDelete, "/students", nil, &resp); err != nil {
		return 0, err
	}
	return resp.DeletedCount, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs a request with retries on transport errors, 429 and 5xx.
// Other 4xx responses are returned immediately.
func (c *Client) doRequest(ctx context.Context, op, method, path string, body, result any) error {
	start := time.Now()
	err := c.retryLoop(ctx, op, method, path, body, result)
	if c.observer != nil {
		c.observer.RemoteCall(op, time.Since(start), err)
	}
	return err
}

func (c *Client) retryLoop(ctx context.Context, op, method, path string, body, result any) error {
	var lastErr *attemptError
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.retry.Backoff(attempt)
			if lastErr.retryAfter > wait {
				wait = min(lastErr.retryAfter, c.retry.MaxBackoff)
			}
			select {
			case <-ctx.Done():
				return &core.RemoteError{Op: op, Err: ctx.Err()}
			case <-time.After(wait):
			}
		}

		err := c.doSingleRequest(ctx, op, method, path, body, result)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(ctx, err) {
			return err.RemoteError
		}
		if attempt == c.retry.MaxRetries {
			break
		}
		c.logger.Warn("store request failed, retrying",
			"op", op,
			"attempt", attempt+1,
			"status", err.StatusCode,
			"error", err.Error(),
		)
	}
	return lastErr.RemoteError
}

// attemptError carries retry hints alongside the contract error.
type attemptError struct {
	*core.RemoteError
	retryAfter time.Duration
	permanent  bool
}

func (c *Client) doSingleRequest(ctx context.Context, op, method, path string, body, result any) *attemptError {
	fail := func(status int, err error) *attemptError {
		return &attemptError{RemoteError: &core.RemoteError{Op: op, StatusCode: status, Err: err}}
	}
	permanent := func(err error) *attemptError {
		ae := fail(0, err)
		ae.permanent = true
		return ae
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return permanent(fmt.Errorf("marshal body: %w", err))
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bodyReader)
	if err != nil {
		return permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(0, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fail(resp.StatusCode, core.ErrNotFound)

	case resp.StatusCode == http.StatusTooManyRequests:
		ae := fail(resp.StatusCode, errors.New("rate limit exceeded"))
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			ae.retryAfter = time.Duration(secs) * time.Second
		}
		return ae

	case resp.StatusCode >= 400:
		var er errorResponse
		_ = json.Unmarshal(respBody, &er)
		if len(er.Errors) > 0 {
			ae := fail(resp.StatusCode, nil)
			ae.Fields = er.Errors
			return ae
		}
		msg := er.Message
		if msg == "" {
			msg = er.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fail(resp.StatusCode, errors.New(msg))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fail(resp.StatusCode, fmt.Errorf("unmarshal response: %w", err))
		}
	}
	return nil
}

// isRetryable reports whether another attempt might succeed.
func isRetryable(ctx context.Context, err *attemptError) bool {
	if err.permanent || ctx.Err() != nil {
		return false
	}
	switch {
	case err.StatusCode == 0:
		return true
	case err.StatusCode == http.StatusTooManyRequests:
		return true
	case err.StatusCode >= 500:
		return true
	default:
		return false
	}
}
