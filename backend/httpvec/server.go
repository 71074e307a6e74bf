package httpvec

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/health"
	"github.com/stokry/vectra/logger"
	"github.com/stokry/vectra/validator"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ServerOption configures the handler
type ServerOption func(*serverOptions)

type serverOptions struct {
	apiKey         string
	apiKeyHeader   string
	serviceName    string
	tracerProvider trace.TracerProvider
	logger         *logger.CtxZapLogger
	health         func(context.Context) *health.Response
}

// WithAPIKey requires every request to carry key in the API key header
func WithAPIKey(header, key string) ServerOption {
	return func(o *serverOptions) {
		if header != "" {
			o.apiKeyHeader = header
		}
		o.apiKey = key
	}
}

// WithServerTracing enables otelgin server spans
func WithServerTracing(serviceName string, tp trace.TracerProvider) ServerOption {
	return func(o *serverOptions) {
		o.serviceName = serviceName
		o.tracerProvider = tp
	}
}

// WithServerLogger sets the logger
func WithServerLogger(l *logger.CtxZapLogger) ServerOption {
	return func(o *serverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHealthEndpoint serves GET /health from fn, without the API key check.
// Unhealthy reports answer 503.
func WithHealthEndpoint(fn func(context.Context) *health.Response) ServerOption {
	return func(o *serverOptions) {
		o.health = fn
	}
}

// NewHandler serves the REST API from adapter
func NewHandler(adapter backend.Adapter, opts ...ServerOption) http.Handler {
	o := serverOptions{apiKeyHeader: DefaultAPIKeyHeader, logger: logger.GetLogger("vectra")}
	for _, opt := range opts {
		opt(&o)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(recovery(o.logger))
	if o.tracerProvider != nil {
		engine.Use(otelgin.Middleware(o.serviceName, otelgin.WithTracerProvider(o.tracerProvider)))
	}
	if o.health != nil {
		engine.GET("/health", func(c *gin.Context) {
			report := o.health(c.Request.Context())
			status := http.StatusOK
			if !report.IsHealthy() && !report.IsDegraded() {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, report)
		})
	}
	if o.apiKey != "" {
		engine.Use(requireAPIKey(o.apiKeyHeader, o.apiKey))
	}

	s := &server{adapter: adapter, logger: o.logger}

	engine.POST("/indexes", wrap(func(c *gin.Context, req *backend.IndexSpec) (any, error) {
		return gin.H{}, s.adapter.CreateIndex(c.Request.Context(), *req)
	}))
	engine.GET("/indexes", func(c *gin.Context) {
		names, err := s.adapter.ListIndexes(c.Request.Context())
		respond(c, listIndexesResponse{Indexes: names}, err)
	})
	engine.GET("/indexes/:index", func(c *gin.Context) {
		info, err := s.adapter.DescribeIndex(c.Request.Context(), c.Param("index"))
		respond(c, info, err)
	})
	engine.DELETE("/indexes/:index", func(c *gin.Context) {
		respond(c, gin.H{}, s.adapter.DeleteIndex(c.Request.Context(), c.Param("index")))
	})
	engine.GET("/indexes/:index/stats", func(c *gin.Context) {
		stats, err := s.adapter.Stats(c.Request.Context(), c.Param("index"))
		respond(c, stats, err)
	})
	engine.GET("/indexes/:index/namespaces", s.listNamespaces)

	engine.POST("/indexes/:index/vectors/upsert", wrap(func(c *gin.Context, req *upsertRequest) (any, error) {
		return s.adapter.Upsert(c.Request.Context(), c.Param("index"), req.Namespace, req.Vectors)
	}))
	engine.POST("/indexes/:index/vectors/fetch", wrap(func(c *gin.Context, req *fetchRequest) (any, error) {
		vectors, err := s.adapter.Fetch(c.Request.Context(), c.Param("index"), req.Namespace, req.IDs)
		return fetchResponse{Vectors: vectors}, err
	}))
	engine.POST("/indexes/:index/vectors/update", wrap(func(c *gin.Context, req *updateRequest) (any, error) {
		return gin.H{}, s.adapter.Update(c.Request.Context(), c.Param("index"), req.Namespace, req.Update)
	}))
	engine.POST("/indexes/:index/vectors/delete", wrap(func(c *gin.Context, req *deleteRequest) (any, error) {
		return s.adapter.Delete(c.Request.Context(), c.Param("index"), req.Namespace, req.DeleteRequest)
	}))
	engine.POST("/indexes/:index/query", wrap(func(c *gin.Context, req *queryRequest) (any, error) {
		return s.adapter.Query(c.Request.Context(), c.Param("index"), req.Namespace, req.Query)
	}))
	engine.POST("/indexes/:index/query/hybrid", wrap(s.hybridSearch))
	engine.POST("/indexes/:index/query/text", wrap(s.textSearch))

	return engine
}

type server struct {
	adapter backend.Adapter
	logger  *logger.CtxZapLogger
}

func (s *server) listNamespaces(c *gin.Context) {
	lister, ok := s.adapter.(backend.NamespaceLister)
	if !ok {
		respond(c, nil, backend.Unsupported(s.adapter, backend.CapListNamespaces))
		return
	}
	names, err := lister.ListNamespaces(c.Request.Context(), c.Param("index"))
	respond(c, listNamespacesResponse{Namespaces: names}, err)
}

func (s *server) hybridSearch(c *gin.Context, req *hybridRequest) (any, error) {
	searcher, ok := s.adapter.(backend.HybridSearcher)
	if !ok {
		return nil, backend.Unsupported(s.adapter, backend.CapHybridSearch)
	}
	return searcher.HybridSearch(c.Request.Context(), c.Param("index"), req.Namespace, req.HybridQuery)
}

func (s *server) textSearch(c *gin.Context, req *textRequest) (any, error) {
	searcher, ok := s.adapter.(backend.TextSearcher)
	if !ok {
		return nil, backend.Unsupported(s.adapter, backend.CapTextSearch)
	}
	return searcher.TextSearch(c.Request.Context(), c.Param("index"), req.Namespace, req.TextQuery)
}

// wrap binds the JSON body, validates it when it can, and renders the result
func wrap[Req any](handler func(c *gin.Context, req *Req) (any, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Req
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, nil, errcode.ErrValidation.WithMsgf("invalid request body: %v", err).Wrap(err))
			return
		}
		if v, ok := any(&req).(validator.Validatable); ok {
			if err := validator.ValidateRequest(v); err != nil {
				respond(c, nil, err)
				return
			}
		}
		resp, err := handler(c, &req)
		respond(c, resp, err)
	}
}

func respond(c *gin.Context, body any, err error) {
	if err == nil {
		c.JSON(http.StatusOK, body)
		return
	}

	out := errorResponse{Kind: errcode.KindOf(err).String(), Message: err.Error()}
	var le *errcode.LayeredError
	if errors.As(err, &le) {
		out.Code = le.Code()
		out.Message = le.Message()
		out.Data = le.Data()
	}
	c.JSON(statusOf(err), out)
}

// statusOf maps the taxonomy onto HTTP; the inverse of httpclient.Response.Err
func statusOf(err error) int {
	switch {
	case errors.Is(err, errcode.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, backend.ErrIndexExists):
		return http.StatusConflict
	}
	switch errcode.KindOf(err) {
	case errcode.KindValidation:
		return http.StatusBadRequest
	case errcode.KindAuthentication:
		return http.StatusUnauthorized
	case errcode.KindNotFound:
		return http.StatusNotFound
	case errcode.KindConflict:
		return http.StatusConflict
	case errcode.KindTimeout:
		return http.StatusGatewayTimeout
	case errcode.KindRateLimit:
		return http.StatusTooManyRequests
	case errcode.KindOpenCircuit, errcode.KindPoolTimeout, errcode.KindPoolExhausted:
		return http.StatusServiceUnavailable
	case errcode.KindConnection:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func requireAPIKey(header, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(header) != key {
			respond(c, nil, errcode.ErrAuthentication.WithMsg("missing or invalid api key"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func recovery(l *logger.CtxZapLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				l.ErrorCtx(c.Request.Context(), "💥 [Server] panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path))
				respond(c, nil, errcode.ErrServer.WithMsg("internal error"))
				c.Abort()
			}
		}()
		c.Next()
	}
}
