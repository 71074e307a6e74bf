package httpclient

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/stokry/vectra/errcode"
)

const maxErrorBody = 512

// Response fully read HTTP response
type Response struct {
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// IsSuccess 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsClientError 4xx
func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// IsServerError 5xx
func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500 && r.StatusCode < 600
}

// JSON decodes the body into v
func (r *Response) JSON(v interface{}) error {
	if v == nil || len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// String returns the body
func (r *Response) String() string {
	return string(r.Body)
}

// Err maps a non-2xx status onto the error taxonomy; nil on success.
// The status code, a truncated body and Retry-After travel as error data.
func (r *Response) Err() error {
	if r.IsSuccess() {
		return nil
	}

	var base *errcode.LayeredError
	switch {
	case r.StatusCode == http.StatusBadRequest, r.StatusCode == http.StatusUnprocessableEntity:
		base = errcode.ErrValidation
	case r.StatusCode == http.StatusUnauthorized, r.StatusCode == http.StatusForbidden:
		base = errcode.ErrAuthentication
	case r.StatusCode == http.StatusNotFound:
		base = errcode.ErrNotFound
	case r.StatusCode == http.StatusConflict:
		base = errcode.ErrConflict
	case r.StatusCode == http.StatusRequestTimeout, r.StatusCode == http.StatusGatewayTimeout:
		base = errcode.ErrTimeout
	case r.StatusCode == http.StatusTooManyRequests:
		base = errcode.ErrServer.WithMsg("too many requests")
	case r.IsServerError():
		base = errcode.ErrServer
	default:
		base = errcode.ErrServer.WithMsg("unexpected status")
	}

	body := r.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	err := base.
		WithMsgf("%s: HTTP %d", base.Message(), r.StatusCode).
		WithData("status", r.StatusCode).
		WithData("body", string(body))
	if ra := r.Headers.Get("Retry-After"); ra != "" {
		if secs, perr := strconv.Atoi(ra); perr == nil {
			err = err.WithData("retry_after", time.Duration(secs)*time.Second)
		}
	}
	return err
}

func newResponse(httpResp *http.Response, duration time.Duration) (*Response, error) {
	defer httpResp.Body.Close()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    httpResp.Header,
		Body:       body,
		Duration:   duration,
	}, nil
}
