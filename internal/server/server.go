// Package server is the HTTP front end: a gin router serving the question
// endpoint, SQL checking and scoring, Prometheus metrics and the MCP
// transport.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"text2sql/internal/apperrors"
	"text2sql/internal/assistant"
	"text2sql/internal/mcptools"
)

// RequestIDHeader carries the request id in and out
const RequestIDHeader = "X-Request-ID"

const shutdownTimeout = 10 * time.Second

// Config wires a Server
type Config struct {
	Assistant *assistant.Assistant
	Logger    *zap.Logger
	Version   string
	// EnableMCP mounts the MCP streamable HTTP transport on /mcp
	EnableMCP bool
	// Mode is the gin mode; empty keeps gin's current mode
	Mode string
}

// Server owns the router and its metrics
type Server struct {
	assistant *assistant.Assistant
	logger    *zap.Logger
	version   string
	metrics   *serverMetrics
	router    *gin.Engine
}

// New builds the router. It does not listen.
func New(cfg Config) (*Server, error) {
	if cfg.Assistant == nil {
		return nil, fmt.Errorf("%w: server needs an assistant", apperrors.ErrConfiguration)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	s := &Server{
		assistant: cfg.Assistant,
		logger:    cfg.Logger.Named("server"),
		version:   cfg.Version,
		metrics:   newServerMetrics(),
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestID(), s.metrics.middleware(), accessLog(s.logger))

	router.GET("/health", s.handleHealth)
	router.POST("/text2sql", s.handleText2SQL)
	router.POST("/validate", s.handleValidate)
	router.POST("/verify", s.handleVerify)
	router.POST("/score", s.handleScore)
	router.GET("/metrics", s.metrics.handler())

	if cfg.EnableMCP {
		mcp := mcptools.NewServer(cfg.Assistant, cfg.Version)
		router.POST("/mcp", gin.WrapH(mcpserver.NewStreamableHTTPServer(mcp, mcpserver.WithStateLess(true))))
	}

	s.router = router
	return s, nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr), zap.String("version", s.version))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// requestID reuses the caller's X-Request-ID or mints one, and makes it
// visible to the assistant through the request context.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(assistant.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.Writer.Header().Get(RequestIDHeader)))
	}
}
