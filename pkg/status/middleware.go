package status

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	ctxRequestID     = "request_id"
	ctxRequestLogger = "request_logger"
	headerRequestID  = "X-Request-ID"
)

// traced tags every request with an id, a request-scoped logger and a server
// span continuing any incoming trace context.
func traced(base zerolog.Logger, tracer trace.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = xid.New().String()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)

		route := c.FullPath()
		logger := base.With().Str("request_id", id).Str("method", c.Request.Method).Str("path", route).Logger()
		c.Set(ctxRequestLogger, logger)

		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.String("request.id", id),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		code := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", code))
		if code >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(code))
		}
		logger.Debug().Int("status", code).Msg("Served status request")
	}
}

// limited rejects clients that exceed limit requests per window.
func limited(rl *RateLimiter, limit int, base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.Allow(c.ClientIP(), limit) {
			c.Next()
			return
		}
		abort(c, http.StatusTooManyRequests, "rate limit exceeded", base)
	}
}

func requestLogger(c *gin.Context, fallback zerolog.Logger) zerolog.Logger {
	if v, ok := c.Get(ctxRequestLogger); ok {
		if logger, ok := v.(zerolog.Logger); ok {
			return logger
		}
	}
	return fallback
}

func abort(c *gin.Context, code int, message string, fallback zerolog.Logger) {
	logger := requestLogger(c, fallback)
	logger.Warn().Int("status", code).Msg(message)
	if span := trace.SpanFromContext(c.Request.Context()); span.IsRecording() {
		span.AddEvent("http.error", trace.WithAttributes(attribute.String("error.message", message)))
	}
	c.AbortWithStatusJSON(code, gin.H{"error": message, "request_id": c.GetString(ctxRequestID)})
}
