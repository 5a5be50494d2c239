// Package otelx configures OpenTelemetry tracing for the services.
package otelx

import (
	"context"
	"strconv"
	"time"

	"github.com/agribeta/agribeta/libs/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

type Config struct {
	Enabled     bool
	ServiceName string
	Environment string
	// Endpoint is the host:port of an OTLP gRPC collector.
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

// ConfigFromEnv reads OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT,
// OTEL_EXPORTER_OTLP_INSECURE, OTEL_SAMPLING_RATIO and APP_ENV.
func ConfigFromEnv(serviceName string) Config {
	ratio := 1.0
	if f, err := strconv.ParseFloat(config.String("OTEL_SAMPLING_RATIO", "1"), 64); err == nil && f >= 0 && f <= 1 {
		ratio = f
	}
	return Config{
		Enabled:     config.Bool("OTEL_ENABLED", true),
		ServiceName: serviceName,
		Environment: config.String("APP_ENV", "development"),
		Endpoint:    config.String("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		Insecure:    config.Bool("OTEL_EXPORTER_OTLP_INSECURE", true),
		SampleRatio: ratio,
	}
}

// Setup installs the W3C propagators and, when enabled, a batching tracer
// provider. Propagation is installed even with tracing off so outbox events
// keep their trace headers.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(3 * time.Second),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
