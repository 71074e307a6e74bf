package httpclient

import (
	"net/http"
	"net/url"
	"time"

	"github.com/stokry/vectra/logger"
)

// config internal configuration
type config struct {
	baseURL   string
	timeout   time.Duration
	transport http.RoundTripper
	headers   map[string]string
	queries   url.Values
	logger    *logger.CtxZapLogger

	beforeRequest func(*http.Request) error
	afterResponse func(*Response) error
}

// Option configures a Client
type Option func(*config)

// WithBaseURL prefixes relative request URLs
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = baseURL
	}
}

// WithTimeout bounds every request (default 30s)
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHeader sets a header sent with every request
func WithHeader(key, value string) Option {
	return func(c *config) {
		c.headers[key] = value
	}
}

// WithHeaders sets several headers
func WithHeaders(headers map[string]string) Option {
	return func(c *config) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithQuery adds a query parameter to every request
func WithQuery(key, value string) Option {
	return func(c *config) {
		c.queries.Add(key, value)
	}
}

// WithTransport replaces the round tripper (e.g. an otel or test transport)
func WithTransport(rt http.RoundTripper) Option {
	return func(c *config) {
		c.transport = rt
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBeforeRequest runs fn on every outgoing request
func WithBeforeRequest(fn func(*http.Request) error) Option {
	return func(c *config) {
		c.beforeRequest = fn
	}
}

// WithAfterResponse runs fn on every response before status mapping
func WithAfterResponse(fn func(*Response) error) Option {
	return func(c *config) {
		c.afterResponse = fn
	}
}

func newConfig() *config {
	return &config{
		timeout: 30 * time.Second,
		headers: make(map[string]string),
		queries: make(url.Values),
		logger:  logger.GetLogger("vectra"),
	}
}

func applyOptions(cfg *config, opts []Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
}
