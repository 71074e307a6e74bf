// Package httpclient is the HTTP transport of REST backends. It maps
// transport failures and non-2xx statuses onto the vectra error taxonomy;
// retries and circuit breaking are applied by the caller.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/stokry/vectra/errcode"
	"go.uber.org/zap"
)

// Client HTTP client
type Client struct {
	httpClient *http.Client
	config     *config
}

// NewClient creates a client
func NewClient(opts ...Option) *Client {
	cfg := newConfig()
	applyOptions(cfg, opts)

	transport := cfg.transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.timeout, Transport: transport},
		config:     cfg,
	}
}

// Do performs req. Non-2xx responses are returned without error; use
// Response.Err to classify them. Transport failures are classified here.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := req.build(ctx, c.config.baseURL, c.config.queries, c.config.headers)
	if err != nil {
		return nil, errcode.ErrValidation.WithMsgf("build http request: %v", err).Wrap(err)
	}

	if c.config.beforeRequest != nil {
		if err := c.config.beforeRequest(httpReq); err != nil {
			return nil, fmt.Errorf("before request hook failed: %w", err)
		}
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.config.logger.DebugCtx(ctx, "http request failed",
			zap.String("method", req.Method),
			zap.String("url", httpReq.URL.Redacted()),
			zap.Error(err))
		return nil, classifyTransport(err)
	}

	resp, err := newResponse(httpResp, time.Since(start))
	if err != nil {
		return nil, errcode.ErrConnection.WithMsg("read response body failed").Wrap(err)
	}

	c.config.logger.DebugCtx(ctx, "http request done",
		zap.String("method", req.Method),
		zap.String("url", httpReq.URL.Redacted()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", resp.Duration))

	if c.config.afterResponse != nil {
		if err := c.config.afterResponse(resp); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// Send performs req, classifies a non-2xx status and decodes the body into out
func (c *Client) Send(ctx context.Context, req *Request, out interface{}) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if err := resp.JSON(out); err != nil {
		return errcode.ErrServer.WithMsgf("decode response: %v", err).Wrap(err)
	}
	return nil
}

// DoWithData performs req and decodes a successful body into a new T
func DoWithData[T any](ctx context.Context, client *Client, req *Request) (*T, error) {
	var result T
	if err := client.Send(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// classifyTransport maps a failed round trip onto the taxonomy
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errcode.ErrTimeout.Wrap(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errcode.ErrTimeout.Wrap(err)
	}
	return errcode.ErrConnection.Wrap(err)
}
