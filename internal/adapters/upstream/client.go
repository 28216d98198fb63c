// Package upstream is the shared HTTP plumbing for the remote services the
// desk talks to. It classifies failures and reports every call to an
// optional observer for auditing.
package upstream

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
)

const (
	defaultTimeout = 30 * time.Second
	// maxBody caps buffered response bodies.
	maxBody = 16 << 20
)

// Call describes one finished remote call.
type Call struct {
	Service    string
	Method     string
	Path       string
	Request    []byte
	Response   []byte
	StatusCode int
	Err        error
	Duration   time.Duration
	StartedAt  time.Time
}

// Observer receives every call a Client makes.
type Observer interface {
	ObserveCall(ctx context.Context, call Call)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, call Call)

func (f ObserverFunc) ObserveCall(ctx context.Context, call Call) { f(ctx, call) }

// Request is one outgoing call.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        []byte
	ContentType string
	// Token, when set, is sent as a bearer Authorization header.
	Token string
	// AuditBody replaces Body in the audit record, for bodies that should
	// not be stored (image uploads).
	AuditBody []byte
	// Redact keeps the response body out of the audit record.
	Redact bool
	// Expect lists the accepted status codes. Empty accepts any 2xx.
	Expect []int
}

// Response is a fully buffered response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client sends requests to one base URL.
type Client struct {
	service    string
	baseURL    string
	httpClient *http.Client
	observer   Observer
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithObserver reports every call to o.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithLogger sets the logger used for call tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a client for service rooted at baseURL.
func New(service, baseURL string, opts ...Option) *Client {
	c := &Client{
		service:    service,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Service returns the service name used in errors and audit records.
func (c *Client) Service() string {
	return c.service
}

// BaseURL returns the base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Send performs r and buffers the response. Transport failures and
// unexpected status codes come back as *Error.
func (c *Client) Send(ctx context.Context, op string, r Request) (*Response, error) {
	start := time.Now()
	resp, err := c.roundTrip(ctx, op, r)
	if err != nil {
		c.observe(ctx, r, nil, 0, err, start)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		err = &Error{Service: c.service, Op: op, Kind: KindUnavailable, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
		c.observe(ctx, r, nil, resp.StatusCode, err, start)
		return nil, err
	}

	if !accepted(resp.StatusCode, r.Expect) {
		err = &Error{Service: c.service, Op: op, Kind: KindStatus, StatusCode: resp.StatusCode, Body: snippet(body)}
		c.observe(ctx, r, body, resp.StatusCode, err, start)
		return nil, err
	}

	c.observe(ctx, r, body, resp.StatusCode, nil, start)
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Stream performs r and hands back the unread body on success. The caller
// must close it. The audit record carries no response body.
func (c *Client) Stream(ctx context.Context, op string, r Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.roundTrip(ctx, op, r)
	if err != nil {
		c.observe(ctx, r, nil, 0, err, start)
		return nil, err
	}

	if !accepted(resp.StatusCode, r.Expect) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		err = &Error{Service: c.service, Op: op, Kind: KindStatus, StatusCode: resp.StatusCode, Body: snippet(body)}
		c.observe(ctx, r, body, resp.StatusCode, err, start)
		return nil, err
	}

	c.observe(ctx, r, nil, resp.StatusCode, nil, start)
	return resp, nil
}

// SendJSON marshals in as the request body and decodes the response into out
// when out is non-nil.
func (c *Client) SendJSON(ctx context.Context, op string, r Request, in, out any) (*Response, error) {
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		r.Body = body
		r.ContentType = "application/json"
	}

	resp, err := c.Send(ctx, op, r)
	if err != nil {
		return nil, err
	}
	if out != nil {
		if err := c.Decode(op, resp.Body, out); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// Decode unmarshals body into out, reporting failures as malformed.
func (c *Client) Decode(op string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Service: c.service, Op: op, Kind: KindMalformed, Body: snippet(body), Err: err}
	}
	return nil
}

// Malformed builds a malformed-payload error for op.
func (c *Client) Malformed(op string, body []byte, err error) error {
	return &Error{Service: c.service, Op: op, Kind: KindMalformed, Body: snippet(body), Err: err}
}

func (c *Client) roundTrip(ctx context.Context, op string, r Request) (*http.Response, error) {
	u := c.baseURL + r.Path
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	req.Header.Set("Accept", "application/json")
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}

	c.logger.Debug("upstream request",
		"service", c.service,
		"op", op,
		"method", r.Method,
		"path", r.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Service: c.service, Op: op, Kind: KindUnavailable, Err: err}
	}
	return resp, nil
}

func (c *Client) observe(ctx context.Context, r Request, respBody []byte, status int, err error, start time.Time) {
	if c.observer == nil {
		return
	}

	reqBody := r.Body
	if r.AuditBody != nil {
		reqBody = r.AuditBody
	}
	if r.Redact {
		respBody = nil
	}

	c.observer.ObserveCall(ctx, Call{
		Service:    c.service,
		Method:     r.Method,
		Path:       r.Path,
		Request:    reqBody,
		Response:   respBody,
		StatusCode: status,
		Err:        err,
		Duration:   time.Since(start),
		StartedAt:  start,
	})
}

func accepted(status int, expect []int) bool {
	if len(expect) == 0 {
		return status >= 200 && status < 300
	}
	for _, s := range expect {
		if s == status {
			return true
		}
	}
	return false
}

func snippet(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
