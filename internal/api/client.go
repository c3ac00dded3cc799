// Package api is the HTTP client for the Data Agent backend: auth,
// conversations, the chat block stream and mention candidate lists.
package api

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
	"sync"
	"time"
)

// DefaultTimeout bounds plain JSON requests. Streaming chat requests are
// bounded by their context only.
const DefaultTimeout = 10 * time.Second

// TokenSource supplies and persists the bearer token pair.
type TokenSource interface {
	Tokens() (access, refresh string)
	SetTokens(access, refresh string) error
	Clear() error
}

// Client talks to the backend under a base URL such as
// http://localhost:8081/api.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	stream     *http.Client
	tokens     TokenSource
	log        *slog.Logger

	// refreshMu serializes token refreshes so concurrent 401s trigger one
	// refresh call.
	refreshMu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for JSON requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokens sets the token source used for the Authorization header and
// refresh-on-401.
func WithTokens(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		stream:     &http.Client{},
		tokens:     memoryTokens(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Tokens returns the token source in use.
func (c *Client) Tokens() TokenSource {
	return c.tokens
}

// endpoint joins path onto the base URL. path is unescaped; segments such
// as database names are escaped by url.URL.
func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// request is one call to the backend.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// raw is sent as-is with contentType instead of a JSON body.
	raw         []byte
	contentType string
	// noRefresh disables refresh-and-retry, used by the refresh call itself.
	noRefresh bool
	stream    bool
}

// do sends req and returns the response for a 2xx status. On a 401 carrying
// the not-logged-in code it refreshes the token pair once and retries.
// The caller closes the body.
func (c *Client) do(ctx context.Context, req request) (*http.Response, error) {
	used, _ := c.tokens.Tokens()
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	apiErr := readError(resp)
	if req.noRefresh || !apiErr.NotLoggedIn() {
		return nil, apiErr
	}

	c.log.Debug("access token rejected, refreshing", "path", req.path)
	if err := c.refresh(ctx, used); err != nil {
		return nil, err
	}

	resp, err = c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, readError(resp)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	var body io.Reader
	contentType := "application/json"
	if req.raw != nil {
		body = bytes.NewReader(req.raw)
		contentType = req.contentType
	} else if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.endpoint(req.path, req.query), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	if req.stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	if access, _ := c.tokens.Tokens(); access != "" {
		httpReq.Header.Set("Authorization", "Bearer "+access)
	}

	hc := c.httpClient
	if req.stream {
		hc = c.stream
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	return resp, nil
}

// doJSON performs req and decodes a JSON body into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, req request, out any) error {
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	err = decodeJSON(resp.Body, out)
	var apiErr *Error
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &apiErr):
		return apiErr
	default:
		return fmt.Errorf("failed to decode %s response: %w", req.path, err)
	}
}

// decodeJSON decodes a response body. The backend sometimes wraps payloads
// in {code, message, data}; the envelope is unwrapped when present.
func decodeJSON(r io.Reader, target any) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return io.EOF
	}

	var env struct {
		Code    *int            `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if json.Unmarshal(raw, &env) == nil && env.Code != nil && env.Data != nil {
		if *env.Code != 0 {
			return &Error{Code: *env.Code, Message: env.Message}
		}
		raw = env.Data
	}
	return json.Unmarshal(raw, target)
}
