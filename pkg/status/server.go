// Package status serves a read-only view of the event forwarder over HTTP.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/cursor"
)

const tracerName = "github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/status"

// DefaultRateLimit is the number of requests a client may make per minute.
const DefaultRateLimit = 60

// Source reports the current loop state.
type Source interface {
	Status() cursor.Status
}

type Options struct {
	RateLimit      int
	Logger         *zerolog.Logger
	TracerProvider trace.TracerProvider
}

type Server struct {
	router *gin.Engine
	logger zerolog.Logger
}

func New(src Source, opts Options) *Server {
	logger := log.Logger.With().Str("component", "status").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	limit := opts.RateLimit
	if limit == 0 {
		limit = DefaultRateLimit
	}

	r := gin.New()
	r.Use(gin.Recovery(), traced(logger, tp.Tracer(tracerName)), limited(NewRateLimiter(time.Minute), limit, logger))
	r.GET("/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/v1/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, src.Status())
	})
	r.NoRoute(func(c *gin.Context) {
		abort(c, http.StatusNotFound, "not found", logger)
	})
	return &Server{router: r, logger: logger}
}

func (s *Server) Handler() http.Handler { return s.router }

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Status server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
