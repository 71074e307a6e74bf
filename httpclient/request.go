package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request HTTP request description; the body is buffered so it can be resent
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   url.Values

	body []byte
	err  error
}

// NewRequest creates a request
func NewRequest(method, urlStr string) *Request {
	return &Request{
		Method:  method,
		URL:     urlStr,
		Headers: make(map[string]string),
		Query:   make(url.Values),
	}
}

// NewGetRequest creates a GET request
func NewGetRequest(urlStr string) *Request {
	return NewRequest(http.MethodGet, urlStr)
}

// NewPostRequest creates a POST request
func NewPostRequest(urlStr string) *Request {
	return NewRequest(http.MethodPost, urlStr)
}

// NewDeleteRequest creates a DELETE request
func NewDeleteRequest(urlStr string) *Request {
	return NewRequest(http.MethodDelete, urlStr)
}

// WithHeader sets a header
func (r *Request) WithHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

// WithQuery adds a query value
func (r *Request) WithQuery(key, value string) *Request {
	r.Query.Add(key, value)
	return r
}

// WithBody buffers body
func (r *Request) WithBody(body io.Reader) *Request {
	if body == nil {
		return r
	}
	data, err := io.ReadAll(body)
	if err != nil {
		r.err = fmt.Errorf("read request body: %w", err)
		return r
	}
	r.body = data
	return r
}

// WithJSON encodes data as the JSON body. Encoding errors surface from Client.Do.
func (r *Request) WithJSON(data interface{}) *Request {
	if data == nil {
		return r
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		r.err = fmt.Errorf("marshal request body: %w", err)
		return r
	}
	r.body = encoded
	r.Headers["Content-Type"] = "application/json"
	return r
}

// build creates the http.Request for one attempt
func (r *Request) build(ctx context.Context, baseURL string, queries url.Values, headers map[string]string) (*http.Request, error) {
	if r.err != nil {
		return nil, r.err
	}

	fullURL := r.URL
	if baseURL != "" && !strings.HasPrefix(fullURL, "http://") && !strings.HasPrefix(fullURL, "https://") {
		fullURL = strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(fullURL, "/")
	}

	query := make(url.Values, len(r.Query)+len(queries))
	for k, vs := range queries {
		query[k] = append(query[k], vs...)
	}
	for k, vs := range r.Query {
		query[k] = append(query[k], vs...)
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(fullURL, "?") {
			sep = "&"
		}
		fullURL += sep + query.Encode()
	}

	var body io.Reader
	if len(r.body) > 0 {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, fullURL, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}
