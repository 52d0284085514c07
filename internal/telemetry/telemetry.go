// Package telemetry initializes OpenTelemetry exporters and carries the
// service's domain instruments: task-run counters, resolution-time
// histograms, and sandbox rejection counts.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Shutdown flushes and stops the configured exporters.
type Shutdown func(ctx context.Context) error

// Init configures the global OpenTelemetry tracer and meter providers.
// An empty endpoint disables export entirely; the global no-op providers
// stay in place and instruments become free.
func Init(ctx context.Context, endpoint, serviceName, version string) (Shutdown, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	traceExp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	metricExp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(15*time.Second)),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		var firstErr error
		if err := tp.Shutdown(ctx); err != nil {
			firstErr = err
		}
		if err := mp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}, nil
}

// Instruments holds the service's metric instruments. With no exporter
// configured these are no-ops from the global provider.
type Instruments struct {
	TaskRuns        metric.Int64Counter
	TaskDuration    metric.Float64Histogram
	QueryRejections metric.Int64Counter
	ReportViews     metric.Int64Counter
}

// NewInstruments creates the service's instruments from the global meter
// provider. Instrument creation errors are deliberately fatal: they only
// occur on invalid names, which is a programming error.
func NewInstruments() (*Instruments, error) {
	meter := otel.GetMeterProvider().Meter("opsdeck")

	taskRuns, err := meter.Int64Counter("opsdeck.task.runs",
		metric.WithDescription("Completed agent task runs by type and outcome"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create task run counter: %w", err)
	}
	taskDuration, err := meter.Float64Histogram("opsdeck.task.duration_seconds",
		metric.WithDescription("Wall-clock duration of agent task runs"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create task duration histogram: %w", err)
	}
	queryRejections, err := meter.Int64Counter("opsdeck.query.rejections",
		metric.WithDescription("Ad-hoc queries rejected by the sandbox"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create query rejection counter: %w", err)
	}
	reportViews, err := meter.Int64Counter("opsdeck.report.views",
		metric.WithDescription("Report view requests by view name"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create report view counter: %w", err)
	}

	return &Instruments{
		TaskRuns:        taskRuns,
		TaskDuration:    taskDuration,
		QueryRejections: queryRejections,
		ReportViews:     reportViews,
	}, nil
}
