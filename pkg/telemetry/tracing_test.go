package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupTracingDefaults(t *testing.T) {
	ctx := context.Background()
	provider, err := SetupTracing(ctx, Options{ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("setup tracing failed: %v", err)
	}
	if provider == nil {
		t.Fatal("expected provider")
	}
	if err := provider.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestSetupTracingLogSpans(t *testing.T) {
	ctx := context.Background()
	writer := &captureWriter{}
	logger := zerolog.New(writer)
	provider, err := SetupTracing(ctx, Options{ServiceName: "dictl", LogSpans: true, Logger: &logger})
	if err != nil {
		t.Fatalf("setup tracing failed: %v", err)
	}
	_, span := provider.Tracer("test").Start(ctx, "cursor.cycle")
	span.End()
	if err := provider.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if len(writer.entries) != 1 {
		t.Fatalf("expected span to be logged, got %d entries", len(writer.entries))
	}
}

func TestSetupTracingRejectsEmptyEndpoint(t *testing.T) {
	_, err := SetupTracing(context.Background(), Options{Endpoint: "https://"})
	if !errors.Is(err, ErrInvalidEndpoint) {
		t.Fatalf("expected ErrInvalidEndpoint, got %v", err)
	}
}
