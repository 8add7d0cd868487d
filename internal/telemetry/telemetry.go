// Package telemetry wires OpenTelemetry tracing and metrics for the portal.
// Without an OTLP endpoint the global no-op providers stay in place.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Scope is the instrumentation scope shared by every portal component.
const Scope = "github.com/kingrea/portal"

// Settings selects the exporter target.
type Settings struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	Version     string
}

// Shutdown flushes and stops the installed providers.
type Shutdown func(ctx context.Context) error

func noop(context.Context) error { return nil }

// Init installs the global tracer and meter providers.
func Init(ctx context.Context, s Settings) (Shutdown, error) {
	endpoint := strings.TrimSpace(s.Endpoint)
	if endpoint == "" {
		return noop, nil
	}
	if s.ServiceName == "" {
		s.ServiceName = "portal"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(s.ServiceName),
		semconv.ServiceVersionKey.String(s.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if s.Insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}

	traceExp, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)

	metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// Tracer returns the portal tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(Scope)
}

// Meter returns the portal meter from the global provider.
func Meter() metric.Meter {
	return otel.GetMeterProvider().Meter(Scope)
}
