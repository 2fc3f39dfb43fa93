// Package datasource fetches news headlines and daily closing prices from
// external providers: NewsAPI top headlines, RSS feeds and Alpha Vantage.
//
// Every client shares the same plumbing: a context-aware GET helper, an
// optional fetch cache, a rate limiter and a hook that fires once per real
// network request so callers can meter provider quotas.
package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/seenimoa/stockpulse/internal/infra"
)

// --- Errors ---

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindConfig        ErrorKind = "config"         // missing or rejected API key
	KindNetwork       ErrorKind = "network"        // transport failure, timeout
	KindProvider      ErrorKind = "provider"       // non-2xx or malformed payload
	KindQuota         ErrorKind = "quota"          // provider-side rate or plan limit
	KindInvalidSymbol ErrorKind = "invalid_symbol" // provider does not know the symbol
	KindNoData        ErrorKind = "no_data"        // well-formed but empty response
)

// Error is the failure type returned by every client in this package.
type Error struct {
	Kind       ErrorKind
	Source     string // provider name, e.g. "newsapi"
	Message    string
	StatusCode int // HTTP status when one was received
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Source, e.Kind, e.Message)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}

func newError(source string, kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Source: source, Message: msg, Err: err}
}

// --- Shared HTTP client helpers ---

// DefaultUserAgent is the user agent string used for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; StockPulse/1.0; +https://github.com/seenimoa/stockpulse)"

// HTTPClient is a pre-configured HTTP client with reasonable timeouts.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}

// CallHook is invoked once for every request that reaches the network.
// Cache hits do not call it.
type CallHook func(ctx context.Context)

// Option configures a client.
type Option func(*client)

// WithBaseURL overrides the provider endpoint, mostly for tests.
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *client) { c.http = h }
}

// WithCache caches successful responses for ttl.
func WithCache(cache infra.Cache, ttl time.Duration) Option {
	return func(c *client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithLimiter throttles outgoing requests.
func WithLimiter(l *infra.Limiter) Option {
	return func(c *client) { c.limiter = l }
}

// WithCallHook registers a hook fired per network request.
func WithCallHook(h CallHook) Option {
	return func(c *client) { c.onCall = h }
}

// WithHistoryDays bounds how many recent daily bars a price client returns.
func WithHistoryDays(n int) Option {
	return func(c *client) { c.historyDays = n }
}

// client holds the plumbing shared by the concrete providers.
type client struct {
	source      string
	baseURL     string
	http        *http.Client
	cache       infra.Cache
	cacheTTL    time.Duration
	limiter     *infra.Limiter
	onCall      CallHook
	historyDays int
}

func newClient(source, baseURL string, opts []Option) client {
	c := client{
		source:  source,
		baseURL: baseURL,
		http:    HTTPClient,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// cached loads key into dst. Cache failures are treated as misses.
func (c *client) cached(ctx context.Context, key string, dst any) bool {
	if c.cache == nil {
		return false
	}
	found, err := c.cache.Get(ctx, key, dst)
	return err == nil && found
}

func (c *client) store(ctx context.Context, key string, v any) {
	if c.cache == nil || c.cacheTTL <= 0 {
		return
	}
	_ = c.cache.Set(ctx, key, v, c.cacheTTL)
}

// doGet performs a GET request with the given URL and headers, returning the response body.
// The caller is responsible for closing the returned ReadCloser.
func (c *client) doGet(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, newError(c.source, KindNetwork, "rate limiter", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, newError(c.source, KindProvider, "create request", err)
	}

	// Set default headers.
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json, application/rss+xml, application/xml, */*")

	// Override/add custom headers.
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if c.onCall != nil {
		c.onCall(ctx)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, newError(c.source, KindNetwork, "request failed", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		e := newError(c.source, kindForStatus(resp.StatusCode), string(body), nil)
		e.StatusCode = resp.StatusCode
		return nil, e
	}

	return resp.Body, nil
}

// getJSON GETs url and decodes the JSON body into dst.
func (c *client) getJSON(ctx context.Context, url string, dst any) error {
	body, err := c.doGet(ctx, url, nil)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return newError(c.source, KindProvider, "decode response", err)
	}
	return nil
}

func kindForStatus(code int) ErrorKind {
	switch code {
	case http.StatusTooManyRequests:
		return KindQuota
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindConfig
	default:
		return KindProvider
	}
}
