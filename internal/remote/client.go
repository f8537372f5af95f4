// Package remote implements a config backend that talks to a configkv
// server over its HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/configkv/internal/configstore"
)

// DefaultTimeout bounds every remote call unless WithTimeout overrides it.
const DefaultTimeout = 200 * time.Millisecond

// maxParallelSets caps in-flight requests in SetMany.
const maxParallelSets = 4

var (
	// ErrUnavailable wraps transport-level failures (refused, timed out, reset).
	ErrUnavailable = errors.New("remote config service unavailable")
	// ErrEmptyKey is returned for the empty key, which has no URL on the server.
	ErrEmptyKey = errors.New("remote: empty key cannot be addressed")
)

// StatusError is a non-2xx response from the server.
type StatusError struct {
	StatusCode int
	Type       string
	Message    string
}

// notFound reports whether the server answered that the key is absent, as
// opposed to a 404 for an unknown route.
func (e *StatusError) notFound() bool {
	return e.StatusCode == http.StatusNotFound && e.Type == "not_found"
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote returned %d", e.StatusCode)
	}
	return fmt.Sprintf("remote returned %d (%s): %s", e.StatusCode, e.Type, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call deadline. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// Client is a configstore.ConfigBackend and configstore.Deleter backed by a
// remote configkv server.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
}

// New returns a client for the server at endpoint, e.g. "http://127.0.0.1:9100".
func New(endpoint string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("remote: endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("remote: invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: endpoint %q must be http or https", endpoint)
	}

	c := &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) String() string {
	return "remote(" + c.baseURL + ")"
}

type entryResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type setRequest struct {
	Value string `json:"value"`
}

func keyPath(key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	return "/v1/config/" + url.PathEscape(key), nil
}

// Set stores key=value on the server.
func (c *Client) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.set(ctx, key, value)
}

func (c *Client) set(ctx context.Context, key, value string) error {
	path, err := keyPath(key)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPut, path, setRequest{Value: value})
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil)
}

// Get fetches key. A not_found answer is reported as absent, not as an error.
func (c *Client) Get(key string) (string, bool, error) {
	path, err := keyPath(key)
	if err != nil {
		return "", false, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", false, err
	}
	var e entryResponse
	if err := decodeJSON(resp, &e); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.notFound() {
			return "", false, nil
		}
		return "", false, err
	}
	return e.Value, true, nil
}

// All fetches every entry.
func (c *Client) All() (map[string]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/v1/config", nil)
	if err != nil {
		return nil, err
	}
	all := map[string]string{}
	if err := decodeJSON(resp, &all); err != nil {
		return nil, err
	}
	return all, nil
}

// Delete removes key. It reports false if the server did not have it and
// configstore.ErrUnsupported if the server's backend cannot delete.
func (c *Client) Delete(key string) (bool, error) {
	path, err := keyPath(key)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return false, err
	}
	if err := decodeJSON(resp, nil); err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			switch {
			case se.notFound():
				return false, nil
			case se.StatusCode == http.StatusNotImplemented:
				return false, configstore.ErrUnsupported
			}
		}
		return false, err
	}
	return true, nil
}

// Ping checks that the server answers /health.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil)
}

// SetMany stores all entries, several requests at a time. Each request gets
// its own deadline. The first failure cancels the rest.
func (c *Client) SetMany(ctx context.Context, entries map[string]string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSets)

	for k, v := range entries {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, c.timeout)
			defer cancel()
			if err := c.set(callCtx, k, v); err != nil {
				return fmt.Errorf("setting %q: %w", k, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	return resp, nil
}

// decodeJSON closes resp.Body. A nil v discards the body.
func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	se := &StatusError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return se
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		se.Message = envelope.Error.Message
		se.Type = envelope.Error.Type
	} else {
		se.Message = strings.TrimSpace(string(body))
	}
	return se
}
