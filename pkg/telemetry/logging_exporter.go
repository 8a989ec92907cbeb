package telemetry

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// spanLogger writes finished spans as debug-friendly log lines, for runs
// without a collector.
type spanLogger struct {
	logger zerolog.Logger
}

func newSpanLogger() sdktrace.SpanExporter {
	return &spanLogger{logger: log.With().Str("component", "otel").Logger()}
}

func newSpanLoggerWith(logger zerolog.Logger) sdktrace.SpanExporter {
	return &spanLogger{logger: logger}
}

func (l *spanLogger) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		event := l.logger.Info()
		if span.Status().Code == codes.Error {
			event = l.logger.Warn().Str("span_error", span.Status().Description)
		}
		sc := span.SpanContext()
		if sc.HasTraceID() {
			event = event.Str("trace_id", sc.TraceID().String())
		}
		if sc.HasSpanID() {
			event = event.Str("span_id", sc.SpanID().String())
		}
		if parent := span.Parent(); parent.IsValid() {
			event = event.Str("parent_span_id", parent.SpanID().String())
		}
		event = event.
			Str("span_name", span.Name()).
			Str("span_kind", span.SpanKind().String()).
			Dur("duration", span.EndTime().Sub(span.StartTime()))
		if attrs := span.Attributes(); len(attrs) > 0 {
			fields := make(map[string]any, len(attrs))
			for _, attr := range attrs {
				fields[string(attr.Key)] = attr.Value.AsInterface()
			}
			event = event.Fields(fields)
		}
		event.Msg("Span completed")
	}
	return nil
}

func (l *spanLogger) Shutdown(context.Context) error { return nil }

func (l *spanLogger) ForceFlush(context.Context) error { return nil }

var _ sdktrace.SpanExporter = (*spanLogger)(nil)
