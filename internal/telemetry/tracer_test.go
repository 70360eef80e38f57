// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false, ServiceName: "engine-test"})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if provider.Raw() != nil {
		t.Error("expected a noop provider (Raw() == nil)")
	}

	_, span := Tracer("test").Start(context.Background(), "noop-check")
	defer span.End()
	if span.IsRecording() {
		t.Error("expected noop tracer span to be non-recording")
	}
}

func TestNewProvider_EnabledInstallsSamplingProvider(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		Enabled:        true,
		ServiceName:    "engine-test",
		ServiceVersion: "0.0.0-test",
		Environment:    "test",
		SamplingRate:   1.0,
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if provider.Raw() == nil {
		t.Fatal("expected a real tracer provider")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestProvider_ShutdownOnDisabledProviderIsANoop(t *testing.T) {
	provider := &Provider{}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("expected no error on noop shutdown, got: %v", err)
	}
}

func TestTracer_SpanCarriesThroughContext(t *testing.T) {
	if _, err := NewProvider(context.Background(), Config{Enabled: false, ServiceName: "engine-test"}); err != nil {
		t.Fatalf("failed to install provider: %v", err)
	}

	ctx, span := Tracer("pipeline-test").Start(context.Background(), "test-span")
	defer span.End()
	if ctx.Err() != nil {
		t.Fatal("expected a live context")
	}
}

func TestProvider_ConcurrentShutdown(t *testing.T) {
	provider := &Provider{}
	done := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			_ = provider.Shutdown(ctx)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for concurrent shutdown")
		}
	}
}
