// Package apiclient is the single path through which the console talks to the
// ERP backend.
//
// Every call passes two interception points. On the way out, the bearer token
// from the token store is attached. On the way back, failures are normalized
// into *Error. A 401 additionally runs the OnUnauthorized callback and
// clears the token store. The client never navigates and never retries; what
// happens after a 401 is the session layer's decision.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wrcelo/erpwebui/pkg/tokenstore"
)

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 10 << 20

// Options configures a Client.
type Options struct {
	// BaseURL is the REST API root, e.g. "https://erp.example.com/api/".
	BaseURL string

	// IdentityURL is the identity service root that serves "login".
	IdentityURL string

	// ProbePath is the protected GET used to validate a session.
	// Default: "v1/usuarios/me".
	ProbePath string

	// Store holds the bearer token. Required.
	Store tokenstore.Store

	// OnUnauthorized runs whenever the backend answers 401, before the
	// token store is cleared.
	OnUnauthorized func()

	// Transport is the base round tripper. Default: http.DefaultTransport.
	Transport http.RoundTripper

	// Timeout applies to every request. Zero means no client-side timeout.
	Timeout time.Duration

	Logger  *slog.Logger
	Metrics *Metrics
}

// Client issues backend requests.
type Client struct {
	baseURL        *url.URL
	identityURL    *url.URL
	probePath      string
	store          tokenstore.Store
	onUnauthorized func()
	http           *http.Client
	bare           *http.Client
	logger         *slog.Logger
	metrics        *Metrics
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("token store is required")
	}

	base, err := parseBase(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	identity, err := parseBase(opts.IdentityURL)
	if err != nil {
		return nil, fmt.Errorf("invalid identity URL: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	probe := opts.ProbePath
	if probe == "" {
		probe = "v1/usuarios/me"
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Client{
		baseURL:        base,
		identityURL:    identity,
		probePath:      probe,
		store:          opts.Store,
		onUnauthorized: opts.OnUnauthorized,
		http: &http.Client{
			Transport: newTokenTransport(opts.Store, transport),
			Timeout:   opts.Timeout,
		},
		// Login goes out without the token and without 401 interception.
		bare: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		logger:  logger.With(slog.String("component", "api-client")),
		metrics: opts.Metrics,
	}, nil
}

// Get issues a GET and decodes the JSON response into out (if non-nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with body encoded as JSON.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put issues a PUT with body encoded as JSON.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do sends a request relative to the base URL through both interceptors.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	req, err := newJSONRequest(ctx, method, resolve(c.baseURL, path), body)
	if err != nil {
		c.logger.Error("request could not be built",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return &Error{Status: StatusNotSent, Message: err.Error(), Err: err}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.observe(method, StatusNoResponse, time.Since(start))
		c.logger.Error("no response from backend",
			slog.String("method", method),
			slog.String("url", req.URL.String()),
			slog.String("error", err.Error()),
		)
		return &Error{Status: StatusNoResponse, Message: "connection failed", Err: err}
	}
	defer resp.Body.Close()
	c.metrics.observe(method, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &Error{Status: resp.StatusCode, Message: "reading response body failed", Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			c.logger.Error("invalid response body",
				slog.String("method", method),
				slog.String("url", req.URL.String()),
				slog.String("error", err.Error()),
			)
			return &Error{Status: resp.StatusCode, Data: responseData(data), Message: "invalid response body", Err: err}
		}
		return nil
	}

	return c.intercept(req, resp.StatusCode, data)
}

// intercept turns a non-2xx response into an *Error. Only 401 has side
// effects.
func (c *Client) intercept(req *http.Request, status int, body []byte) error {
	attrs := []any{
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
		slog.Int("status", status),
	}

	switch {
	case status == http.StatusUnauthorized:
		c.logger.Warn("backend rejected credentials, ending session", attrs...)
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		c.store.Clear()
		return &Error{Status: status, Data: responseData(body), Message: ErrUnauthorized.Error(), Err: ErrUnauthorized}

	case status == http.StatusForbidden:
		c.logger.Warn("access forbidden", attrs...)

	case status == http.StatusNotFound:
		c.logger.Warn("resource not found", attrs...)

	case status == http.StatusUnprocessableEntity:
		c.logger.Warn("validation failed", append(attrs, slog.String("payload", string(body)))...)

	case status >= 500:
		c.logger.Error("backend error", attrs...)

	default:
		c.logger.Warn("unexpected backend status", attrs...)
	}

	return &Error{Status: status, Data: responseData(body), Message: responseMessage(status, body)}
}

func newJSONRequest(ctx context.Context, method, target string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// parseBase parses a root URL and makes sure it ends in a slash so relative
// paths resolve beneath it.
func parseBase(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("URL must be absolute: %q", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

func resolve(base *url.URL, path string) string {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		// Keep the raw string so request construction reports the problem.
		return base.String() + strings.TrimPrefix(path, "/")
	}
	return base.ResolveReference(ref).String()
}
