// Package telemetry installs the process-wide OpenTelemetry providers
// the primitive engine's instruments record through. When disabled the
// global providers stay at their SDK no-op defaults and normal operation
// emits nothing; when enabled, spans and metrics are encoded as JSON to
// the configured writer (stderr in practice, never stdout — stdout
// carries only JSON-RPC responses).
package telemetry

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config controls the provider installation.
type Config struct {
	Enabled        bool
	Writer         io.Writer
	ServiceName    string
	ServiceVersion string
	// MetricInterval is how often the periodic reader exports
	// accumulated metrics. Zero uses 30s.
	MetricInterval time.Duration
}

// Setup installs tracer and meter providers per cfg and returns a
// shutdown function that flushes both. Must run before any component
// captures the global providers (the primitive engine does so at
// construction).
func Setup(cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if cfg.Writer == nil {
		return nil, errors.New("telemetry: enabled but no writer configured")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "agrama"
	}
	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)

	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
	return shutdown, nil
}
