package httpvec

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/stokry/vectra/logger"
	"go.uber.org/zap"
)

// Server runs a handler on a TCP address
type Server struct {
	addr       string
	handler    http.Handler
	logger     *logger.CtxZapLogger
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a server for handler; nothing listens until Start
func NewServer(addr string, handler http.Handler, l *logger.CtxZapLogger) *Server {
	if l == nil {
		l = logger.GetLogger("vectra")
	}
	return &Server{addr: addr, handler: handler, logger: l}
}

// Start binds the address and serves in the background.
// Bind errors are returned; serve errors after startup are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Debug("🚀 [HTTP] server starting", zap.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		s.logger.Error("❌ [HTTP] server start failed", zap.Error(err))
		return fmt.Errorf("http server start failed: %w", err)
	case <-time.After(50 * time.Millisecond):
		s.logger.Info("✅ [HTTP] server started", zap.String("addr", ln.Addr().String()))
		return nil
	}
}

// Addr returns the bound address, or the configured one before Start
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	s.logger.Debug("✅ [HTTP] server closed")
	return nil
}
