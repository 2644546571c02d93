// Package upstream dispatches authenticated requests to the Yahoo Finance
// RapidAPI.
//
// A [Client] turns a request into exactly one HTTPS GET carrying the RapidAPI
// headers, and classifies the outcome into either raw JSON or a typed error:
//
//   - [ErrMissingCredential] when no API key can be resolved. No request is
//     attempted.
//   - [*RequestError] (matching [ErrUpstreamRequestFailed]) for transport
//     errors, timeouts, non-2xx statuses and non-JSON bodies.
//
// There are no retries; the first failure is final.
//
// Typical usage:
//
//	c, err := upstream.New(credential.NewResolver(os.Getenv(credential.EnvVar)))
//	raw, err := c.Get(ctx, upstream.DefaultBaseURL+"/v1/markets/quote",
//	    map[string]string{"ticker": "AAPL"})
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/yhfinance/internal/credential"
	"github.com/MrWong99/yhfinance/internal/observe"
)

const (
	// DefaultBaseURL is the root every endpoint path is appended to.
	DefaultBaseURL = "https://yahoo-finance15.p.rapidapi.com/api"

	// DefaultHost is sent as x-rapidapi-host.
	DefaultHost = "yahoo-finance15.p.rapidapi.com"

	// DefaultTimeout bounds a single request including reading the body.
	DefaultTimeout = 30 * time.Second

	headerKey  = "x-rapidapi-key"
	headerHost = "x-rapidapi-host"

	maxBodyBytes = 32 << 20
)

// ErrMissingCredential is returned when neither the session nor the process
// fallback provides an API key.
var ErrMissingCredential = credential.ErrMissing

// ErrUpstreamRequestFailed matches every [*RequestError] via [errors.Is].
var ErrUpstreamRequestFailed = errors.New("upstream: request failed")

// RequestError describes a failed upstream request. StatusCode is zero when
// no response was received.
type RequestError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream: GET %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream: GET %s: %v", e.URL, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *RequestError) Unwrap() []error {
	return []error{ErrUpstreamRequestFailed, e.Err}
}

// Request is a fully described upstream call relative to the base URL.
type Request struct {
	// Route is the path template (e.g. "/v1/markets/quote"); used as the
	// low-cardinality metric and span label.
	Route string

	// Path is Route with placeholders substituted and escaped.
	Path string

	// Query holds the query parameters. Empty values are sent as-is.
	Query map[string]string
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL overrides [DefaultBaseURL]. The URL must use https.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.rawBase = base
	}
}

// WithHost overrides the x-rapidapi-host header value.
func WithHost(host string) Option {
	return func(c *Client) {
		c.host = host
	}
}

// WithHTTPClient uses a copy of hc for requests. The copy's Timeout is
// replaced by the client timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		c.httpClient = &cp
	}
}

// WithTimeout overrides [DefaultTimeout]. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMetrics records request metrics to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client issues upstream requests. It holds only immutable configuration and
// is safe for concurrent use.
type Client struct {
	rawBase    string
	base       *url.URL
	host       string
	timeout    time.Duration
	httpClient *http.Client
	creds      *credential.Resolver
	metrics    *observe.Metrics
}

// New returns a Client resolving API keys through creds. creds may be nil,
// in which case only session credentials are used.
func New(creds *credential.Resolver, opts ...Option) (*Client, error) {
	c := &Client{
		rawBase:    DefaultBaseURL,
		host:       DefaultHost,
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
		creds:      creds,
	}
	for _, o := range opts {
		o(c)
	}
	if c.creds == nil {
		c.creds = credential.NewResolver("")
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.httpClient.Timeout = c.timeout

	base, err := url.Parse(strings.TrimRight(c.rawBase, "/"))
	if err != nil {
		return nil, fmt.Errorf("upstream: parse base URL: %w", err)
	}
	if base.Scheme != "https" || base.Host == "" {
		return nil, fmt.Errorf("upstream: base URL %q must be an absolute https URL", c.rawBase)
	}
	c.base = base
	return c, nil
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Fetch dispatches r relative to the base URL.
func (c *Client) Fetch(ctx context.Context, r Request) (json.RawMessage, error) {
	route := r.Route
	if route == "" {
		route = r.Path
	}
	return c.get(ctx, c.BaseURL()+r.Path, r.Query, route)
}

// Get issues one GET to rawURL with query appended. rawURL must lie under
// the configured base URL.
func (c *Client) Get(ctx context.Context, rawURL string, query map[string]string) (json.RawMessage, error) {
	return c.get(ctx, rawURL, query, "")
}

func (c *Client) get(ctx context.Context, rawURL string, query map[string]string, route string) (_ json.RawMessage, err error) {
	key, err := c.creds.Resolve(ctx)
	if err != nil {
		c.metrics.RecordUpstreamError(ctx, routeLabel(route, rawURL), "credential")
		return nil, fmt.Errorf("upstream: %w", err)
	}

	u, err := c.checkURL(rawURL)
	if err != nil {
		return nil, &RequestError{URL: rawURL, Err: err}
	}
	if route == "" {
		route = u.Path
	}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	ctx, span := observe.StartSpan(ctx, "upstream.get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("upstream.route", route)),
	)
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	body, status, kind, err := c.do(ctx, u.String(), key)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		c.metrics.RecordUpstreamRequest(ctx, route, observe.StatusError, elapsed)
		c.metrics.RecordUpstreamError(ctx, route, kind)
		observe.Logger(ctx).Debug("upstream request failed",
			slog.String("route", route), slog.Int("status", status), slog.Any("err", err))
		return nil, &RequestError{URL: redact(u), StatusCode: status, Err: err}
	}

	c.metrics.RecordUpstreamRequest(ctx, route, observe.StatusOK, elapsed)
	observe.Logger(ctx).Debug("upstream request completed",
		slog.String("route", route), slog.Int("status", status), slog.Int("bytes", len(body)))
	return json.RawMessage(body), nil
}

// do performs the request and returns the body, the HTTP status (0 when no
// response arrived) and, on failure, an error kind for metrics.
func (c *Client) do(ctx context.Context, target, key string) ([]byte, int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, "transport", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(headerKey, key)
	req.Header.Set(headerHost, c.host)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, "transport", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, "transport", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, "status", fmt.Errorf("%s: %s", resp.Status, snippet(body))
	}
	if !gjson.ValidBytes(body) {
		return nil, resp.StatusCode, "decode", fmt.Errorf("response is not valid JSON: %s", snippet(body))
	}
	return body, resp.StatusCode, "", nil
}

// checkURL parses rawURL and ensures it is an https URL under the base.
func (c *Client) checkURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "https" {
		return nil, fmt.Errorf("scheme %q is not https", u.Scheme)
	}
	if !strings.EqualFold(u.Host, c.base.Host) {
		return nil, fmt.Errorf("host %q is not the provider host", u.Host)
	}
	if u.Path != c.base.Path && !strings.HasPrefix(u.Path, c.base.Path+"/") {
		return nil, fmt.Errorf("path %q is outside %q", u.Path, c.base.Path)
	}
	return u, nil
}

func routeLabel(route, rawURL string) string {
	if route != "" {
		return route
	}
	if u, err := url.Parse(rawURL); err == nil {
		return u.Path
	}
	return "unknown"
}

// redact drops the query string, which may echo user input.
func redact(u *url.URL) string {
	cp := *u
	cp.RawQuery = ""
	return cp.String()
}

// snippet returns at most 200 bytes of body for error messages, cut on a rune
// boundary.
func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
