package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/items", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("Api-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "1", r.URL.Query().Get("v"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"a"}`, string(body))
		_, _ = w.Write([]byte(`{"id":"42"}`))
	}))
	defer ts.Close()

	c := NewClient(
		WithBaseURL(ts.URL+"/v1/"),
		WithHeader("Api-Key", "secret"),
		WithQuery("v", "1"),
		WithLogger(logger.NewNop()),
	)

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, c.Send(context.Background(), NewPostRequest("/items").WithJSON(map[string]string{"name": "a"}), &out))
	assert.Equal(t, "42", out.ID)
}

func TestClient_DoWithData(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"count":3}`))
	}))
	defer ts.Close()

	got, err := DoWithData[struct {
		Count int `json:"count"`
	}](context.Background(), NewClient(WithLogger(logger.NewNop())), NewGetRequest(ts.URL))
	require.NoError(t, err)
	assert.Equal(t, 3, got.Count)
}

func TestResponse_ErrMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   errcode.Kind
	}{
		{http.StatusOK, errcode.KindUnknown},
		{http.StatusBadRequest, errcode.KindValidation},
		{http.StatusUnprocessableEntity, errcode.KindValidation},
		{http.StatusUnauthorized, errcode.KindAuthentication},
		{http.StatusForbidden, errcode.KindAuthentication},
		{http.StatusNotFound, errcode.KindNotFound},
		{http.StatusConflict, errcode.KindConflict},
		{http.StatusRequestTimeout, errcode.KindTimeout},
		{http.StatusGatewayTimeout, errcode.KindTimeout},
		{http.StatusTooManyRequests, errcode.KindServer},
		{http.StatusInternalServerError, errcode.KindServer},
		{http.StatusServiceUnavailable, errcode.KindServer},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			resp := &Response{StatusCode: tt.status, Headers: http.Header{}}
			err := resp.Err()
			if tt.kind == errcode.KindUnknown {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.kind, errcode.KindOf(err))
			assert.Equal(t, tt.status, errcode.DataOf(err)["status"])
		})
	}
}

func TestResponse_ErrRetryAfterAndBody(t *testing.T) {
	resp := &Response{
		StatusCode: http.StatusTooManyRequests,
		Headers:    http.Header{"Retry-After": []string{"3"}},
		Body:       []byte(`{"error":"slow down"}`),
	}
	data := errcode.DataOf(resp.Err())
	assert.Equal(t, 3*time.Second, data["retry_after"])
	assert.Equal(t, `{"error":"slow down"}`, data["body"])
}

func TestClient_TransportErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	c := NewClient(WithTimeout(20*time.Millisecond), WithLogger(logger.NewNop()))
	_, err := c.Do(context.Background(), NewGetRequest(ts.URL))
	assert.True(t, errcode.IsKind(err, errcode.KindTimeout), "got %v", err)

	ts.Close()
	c = NewClient(WithLogger(logger.NewNop()))
	_, err = c.Do(context.Background(), NewGetRequest(ts.URL))
	assert.True(t, errcode.IsKind(err, errcode.KindConnection), "got %v", err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Do(ctx, NewGetRequest("http://127.0.0.1:1"))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestClient_Hooks(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("X-Request-Id")))
	}))
	defer ts.Close()

	hookErr := errors.New("rejected")
	c := NewClient(
		WithLogger(logger.NewNop()),
		WithBeforeRequest(func(r *http.Request) error {
			r.Header.Set("X-Request-Id", "rid-1")
			return nil
		}),
		WithAfterResponse(func(resp *Response) error {
			if resp.String() != "rid-1" {
				return hookErr
			}
			return nil
		}),
	)
	resp, err := c.Do(context.Background(), NewGetRequest(ts.URL))
	require.NoError(t, err)
	assert.Equal(t, "rid-1", resp.String())
}

func TestRequest_BuildMergesQueryAndHeaders(t *testing.T) {
	req := NewGetRequest("items?x=1").WithQuery("ids", "a").WithQuery("ids", "b").WithHeader("A", "req")
	httpReq, err := req.build(context.Background(), "http://host/api", map[string][]string{"v": {"2"}}, map[string]string{"A": "client", "B": "client"})
	require.NoError(t, err)
	assert.Equal(t, "http://host/api/items?x=1&ids=a&ids=b&v=2", httpReq.URL.String())
	assert.Equal(t, "req", httpReq.Header.Get("A"))
	assert.Equal(t, "client", httpReq.Header.Get("B"))
}

func TestRequest_JSONError(t *testing.T) {
	c := NewClient(WithLogger(logger.NewNop()))
	_, err := c.Do(context.Background(), NewPostRequest("http://host").WithJSON(make(chan int)))
	assert.ErrorIs(t, err, errcode.ErrValidation)
}
