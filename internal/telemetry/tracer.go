// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package telemetry provides the engine's OpenTelemetry tracing setup: one
// span per render stage and one per encoder invocation, parented under a
// per-job span (spec §3 "Observability").
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config controls how the engine's tracer provider is constructed.
type Config struct {
	// Enabled gates whether a real sampling tracer provider is installed.
	// When false, a noop provider is installed: span creation calls still
	// succeed (Tracer().Start returns a valid no-op span) but nothing is
	// recorded, so instrumented code never needs an enabled/disabled branch.
	Enabled bool

	ServiceName    string
	ServiceVersion string
	Environment    string

	// SamplingRate is the fraction of job traces recorded, 0.0-1.0.
	SamplingRate float64
}

// Provider owns the process-wide tracer provider's lifecycle.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider installs the engine's tracer provider as the global OTel
// provider, replacing any provider installed before, and returns a handle
// for Shutdown. No exporter is attached here: the engine core only needs
// spans to exist and to propagate trace/span IDs for log correlation
// (internal/log.WithTraceContext); a host application attaches an exporter
// to the *sdktrace.TracerProvider returned via Raw, or installs its own
// global provider after calling this.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &Provider{}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}, nil
}

// Raw returns the underlying SDK provider so a host can attach its own span
// processor/exporter, or nil if telemetry is disabled.
func (p *Provider) Raw() *sdktrace.TracerProvider {
	return p.tp
}

// Shutdown flushes and releases the tracer provider. Safe to call on a
// disabled (noop) Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(shutdownCtx)
}

// Tracer returns a named tracer from the global provider. Call sites name it
// after the component creating spans, e.g. "veditcore.pipeline".
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
