package httpvec

import (
	"context"
	"net/http"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/httpclient"
	"github.com/stokry/vectra/logger"
	"github.com/stokry/vectra/validator"
)

// Config REST backend configuration
type Config struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	APIKeyHeader string        `mapstructure:"api_key_header"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	if c.APIKeyHeader == "" {
		c.APIKeyHeader = DefaultAPIKeyHeader
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	return validator.Convert(validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	))
}

// Option configures the adapter
type Option func(*options)

type options struct {
	name       string
	logger     *logger.CtxZapLogger
	clientOpts []httpclient.Option
}

// WithName names the adapter ("httpvec")
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClientOptions passes extra options to the underlying httpclient
func WithClientOptions(opts ...httpclient.Option) Option {
	return func(o *options) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

// Adapter implements backend.Adapter and every capability over REST.
// A server without a capability answers 501, surfaced as errcode.ErrUnsupported.
type Adapter struct {
	name   string
	client *httpclient.Client
}

var (
	_ backend.Adapter         = (*Adapter)(nil)
	_ backend.HybridSearcher  = (*Adapter)(nil)
	_ backend.TextSearcher    = (*Adapter)(nil)
	_ backend.NamespaceLister = (*Adapter)(nil)
)

// New creates the adapter; no request is made until the first call
func New(cfg Config, opts ...Option) (*Adapter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{name: "httpvec", logger: logger.GetLogger("vectra")}
	for _, opt := range opts {
		opt(&o)
	}

	clientOpts := []httpclient.Option{
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithTimeout(cfg.Timeout),
		httpclient.WithLogger(o.logger),
		httpclient.WithHeader("Accept", "application/json"),
	}
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, httpclient.WithHeader(cfg.APIKeyHeader, cfg.APIKey))
	}
	clientOpts = append(clientOpts, o.clientOpts...)

	return &Adapter{name: o.name, client: httpclient.NewClient(clientOpts...)}, nil
}

// Name implements backend.Adapter
func (a *Adapter) Name() string {
	return a.name
}

func indexPath(index string, parts ...string) string {
	p := "/indexes/" + url.PathEscape(index)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// send performs req and maps failures, preferring the server's error code
func (a *Adapter) send(ctx context.Context, req *httpclient.Request, out interface{}) error {
	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.IsSuccess() {
		if err := resp.JSON(out); err != nil {
			return errcode.ErrServer.WithMsgf("decode %s response: %v", a.name, err).Wrap(err)
		}
		return nil
	}
	return remoteError(resp)
}

// Upsert implements backend.Adapter
func (a *Adapter) Upsert(ctx context.Context, index, namespace string, vectors []backend.Vector) (*backend.UpsertResult, error) {
	var out backend.UpsertResult
	req := httpclient.NewPostRequest(indexPath(index, "vectors", "upsert")).
		WithJSON(upsertRequest{Namespace: namespace, Vectors: vectors})
	if err := a.send(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Query implements backend.Adapter
func (a *Adapter) Query(ctx context.Context, index, namespace string, q backend.Query) (*backend.QueryResult, error) {
	var out backend.QueryResult
	req := httpclient.NewPostRequest(indexPath(index, "query")).
		WithJSON(queryRequest{Namespace: namespace, Query: q})
	if err := a.send(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HybridSearch implements backend.HybridSearcher
func (a *Adapter) HybridSearch(ctx context.Context, index, namespace string, q backend.HybridQuery) (*backend.QueryResult, error) {
	var out backend.QueryResult
	req := httpclient.NewPostRequest(indexPath(index, "query", "hybrid")).
		WithJSON(hybridRequest{Namespace: namespace, HybridQuery: q})
	if err := a.send(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TextSearch implements backend.TextSearcher
func (a *Adapter) TextSearch(ctx context.Context, index, namespace string, q backend.TextQuery) (*backend.QueryResult, error) {
	var out backend.QueryResult
	req := httpclient.NewPostRequest(indexPath(index, "query", "text")).
		WithJSON(textRequest{Namespace: namespace, TextQuery: q})
	if err := a.send(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Fetch implements backend.Adapter
func (a *Adapter) Fetch(ctx context.Context, index, namespace string, ids []string) (map[string]backend.Vector, error) {
	var out fetchResponse
	req := httpclient.NewPostRequest(indexPath(index, "vectors", "fetch")).
		WithJSON(fetchRequest{Namespace: namespace, IDs: ids})
	if err := a.send(ctx, req, &out); err != nil {
		return nil, err
	}
	if out.Vectors == nil {
		out.Vectors = map[string]backend.Vector{}
	}
	return out.Vectors, nil
}

// Update implements backend.Adapter
func (a *Adapter) Update(ctx context.Context, index, namespace string, u backend.Update) error {
	req := httpclient.NewPostRequest(indexPath(index, "vectors", "update")).
		WithJSON(updateRequest{Namespace: namespace, Update: u})
	return a.send(ctx, req, nil)
}

// Delete implements backend.Adapter
func (a *Adapter) Delete(ctx context.Context, index, namespace string, d backend.DeleteRequest) (*backend.DeleteResult, error) {
	var out backend.DeleteResult
	req := httpclient.NewPostRequest(indexPath(index, "vectors", "delete")).
		WithJSON(deleteRequest{Namespace: namespace, DeleteRequest: d})
	if err := a.send(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateIndex implements backend.Adapter
func (a *Adapter) CreateIndex(ctx context.Context, spec backend.IndexSpec) error {
	return a.send(ctx, httpclient.NewPostRequest("/indexes").WithJSON(spec), nil)
}

// DeleteIndex implements backend.Adapter
func (a *Adapter) DeleteIndex(ctx context.Context, name string) error {
	return a.send(ctx, httpclient.NewDeleteRequest(indexPath(name)), nil)
}

// ListIndexes implements backend.Adapter
func (a *Adapter) ListIndexes(ctx context.Context) ([]string, error) {
	var out listIndexesResponse
	if err := a.send(ctx, httpclient.NewGetRequest("/indexes"), &out); err != nil {
		return nil, err
	}
	return out.Indexes, nil
}

// DescribeIndex implements backend.Adapter
func (a *Adapter) DescribeIndex(ctx context.Context, name string) (*backend.IndexInfo, error) {
	var out backend.IndexInfo
	if err := a.send(ctx, httpclient.NewGetRequest(indexPath(name)), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats implements backend.Adapter
func (a *Adapter) Stats(ctx context.Context, index string) (*backend.IndexStats, error) {
	var out backend.IndexStats
	if err := a.send(ctx, httpclient.NewGetRequest(indexPath(index, "stats")), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListNamespaces implements backend.NamespaceLister
func (a *Adapter) ListNamespaces(ctx context.Context, index string) ([]string, error) {
	var out listNamespacesResponse
	if err := a.send(ctx, httpclient.NewGetRequest(indexPath(index, "namespaces")), &out); err != nil {
		return nil, err
	}
	return out.Namespaces, nil
}

// Check implements component.HealthChecker by listing indexes
func (a *Adapter) Check(ctx context.Context) error {
	_, err := a.ListIndexes(ctx)
	return err
}

// remoteDefinition resolves a server error code to its definition. Only
// permanent errors are rebuilt; transient ones are mapped from the status.
func remoteDefinition(code int) (*errcode.LayeredError, bool) {
	known, ok := errcode.Lookup(code)
	if !ok || !errcode.IsPermanent(known) {
		return nil, false
	}
	return known, true
}

// remoteError rebuilds a known server error from its code, else maps the status
func remoteError(resp *httpclient.Response) error {
	var body errorResponse
	if resp.JSON(&body) == nil {
		if known, ok := remoteDefinition(body.Code); ok {
			err := known.WithData("status", resp.StatusCode)
			if body.Message != "" {
				err = err.WithMsg(body.Message)
			}
			if len(body.Data) > 0 {
				err = err.WithFields(body.Data)
			}
			return err
		}
	}
	if resp.StatusCode == http.StatusNotImplemented {
		return errcode.ErrUnsupported.WithData("status", resp.StatusCode)
	}
	return resp.Err()
}
