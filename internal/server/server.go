// Package server exposes the narrator over HTTP: the generate endpoint, the
// embedded web client, health and metrics.
package server

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cuentos/internal/narrator"
	"cuentos/internal/story"
)

const (
	serviceName     = "cuentos"
	shutdownTimeout = 15 * time.Second
	maxBodyBytes    = 16 << 10
)

//go:embed static/index.html
var indexHTML []byte

// Narrator is the slice of *narrator.Narrator the HTTP layer needs.
type Narrator interface {
	Narrate(ctx context.Context, req story.Request) (*narrator.Result, error)
}

type Options struct {
	Logger  *slog.Logger
	Metrics http.Handler
	Version string
}

type Server struct {
	engine   *gin.Engine
	narrator Narrator
	logger   *slog.Logger
	version  string
}

func New(n Narrator, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:   gin.New(),
		narrator: n,
		logger:   logger,
		version:  opts.Version,
	}
	s.engine.Use(s.requestID(), s.accessLog(), s.recovery())
	s.routes(opts.Metrics)
	return s
}

func (s *Server) routes(metrics http.Handler) {
	s.engine.GET("/", s.index)
	s.engine.GET("/healthz", s.health)
	s.engine.GET("/api/themes", s.themes)
	s.engine.POST("/api/generate", s.generate)
	if metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(metrics))
	}
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run listens on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String(), "version", s.version)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "drain", shutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
