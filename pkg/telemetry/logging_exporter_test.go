package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type captureWriter struct {
	entries []string
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.entries = append(c.entries, string(p))
	return len(p), nil
}

func TestSpanLoggerEmitsSpans(t *testing.T) {
	writer := &captureWriter{}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(newSpanLoggerWith(zerolog.New(writer)))),
	)
	ctx := context.Background()
	tracer := provider.Tracer("test")

	_, span := tracer.Start(ctx, "console.list_devices")
	span.SetAttributes(attribute.Int("http.status_code", 200))
	span.End()

	_, failed := tracer.Start(ctx, "batch.close")
	failed.SetStatus(codes.Error, "503 from console")
	failed.End()

	if err := provider.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if len(writer.entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(writer.entries))
	}
	if !strings.Contains(writer.entries[0], `"span_name":"console.list_devices"`) || !strings.Contains(writer.entries[0], `"http.status_code":200`) {
		t.Fatalf("unexpected entry: %s", writer.entries[0])
	}
	if !strings.Contains(writer.entries[1], `"level":"warn"`) || !strings.Contains(writer.entries[1], "503 from console") {
		t.Fatalf("expected failed span as warning: %s", writer.entries[1])
	}
}
