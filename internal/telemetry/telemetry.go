// Package telemetry sets up the OpenTelemetry SDK providers of the binaries and wires them into the engine.
package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore/oteladapters"
	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore/sqlengine"
	"github.com/AntonStoeckl/scoped-eventstore-go/internal/config"
)

const instrumentationName = "github.com/AntonStoeckl/scoped-eventstore-go/eventstore/sqlengine"

var ErrSettingUpTelemetryFailed = errors.New("setting up telemetry failed")

// Providers holds the SDK providers. A nil *Providers means telemetry is disabled.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
}

// Setup creates providers exporting over OTLP gRPC and installs them globally.
// It returns nil providers when telemetry is disabled.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (*Providers, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)))
	if err != nil {
		return nil, errors.Join(ErrSettingUpTelemetryFailed, err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.Endpoint)}

	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, errors.Join(ErrSettingUpTelemetryFailed, err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, errors.Join(ErrSettingUpTelemetryFailed, err)
	}

	logExporter, err := otlploggrpc.New(ctx, logOpts...)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		_ = metricExporter.Shutdown(ctx)
		return nil, errors.Join(ErrSettingUpTelemetryFailed, err)
	}

	providers := &Providers{
		TracerProvider: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExporter),
			sdktrace.WithResource(res),
		),
		MeterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(cfg.MetricInterval))),
			sdkmetric.WithResource(res),
		),
		LoggerProvider: sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
			sdklog.WithResource(res),
		),
	}

	otel.SetTracerProvider(providers.TracerProvider)
	otel.SetMeterProvider(providers.MeterProvider)
	global.SetLoggerProvider(providers.LoggerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return providers, nil
}

// EngineOptions returns the sqlengine options that route spans, metrics, and contextual logs into the providers.
func (p *Providers) EngineOptions() []sqlengine.Option {
	if p == nil {
		return nil
	}

	var options []sqlengine.Option

	if p.TracerProvider != nil {
		options = append(options, sqlengine.WithTracing(
			oteladapters.NewTracingCollector(p.TracerProvider.Tracer(instrumentationName)),
		))
	}

	if p.MeterProvider != nil {
		options = append(options, sqlengine.WithMetrics(
			oteladapters.NewMetricsCollector(p.MeterProvider.Meter(instrumentationName)),
		))
	}

	if p.LoggerProvider != nil {
		options = append(options, sqlengine.WithContextualLogger(
			oteladapters.NewSlogBridgeLogger(instrumentationName, otelslog.WithLoggerProvider(p.LoggerProvider)),
		))
	}

	return options
}

// Shutdown flushes and stops all providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}

	var errs []error

	if p.TracerProvider != nil {
		errs = append(errs, p.TracerProvider.Shutdown(ctx))
	}

	if p.MeterProvider != nil {
		errs = append(errs, p.MeterProvider.Shutdown(ctx))
	}

	if p.LoggerProvider != nil {
		errs = append(errs, p.LoggerProvider.Shutdown(ctx))
	}

	return errors.Join(errs...)
}
