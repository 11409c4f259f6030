// Package tracing exports OpenTelemetry spans for tile fetches, decodes
// and MCP tool calls.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/paulmach/orb/maptile"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// ServiceName is the service.name resource attribute.
	ServiceName = "vtdecode"
	// TracerName names the instrumentation scope.
	TracerName = "github.com/NERVsystems/vtdecode"
)

// Environment variables read by InitTracing.
const (
	EnvEndpoint    = "OTLP_ENDPOINT"
	EnvSampleRatio = "OTLP_SAMPLE_RATIO"
	EnvEnvironment = "ENVIRONMENT"
)

// Tracer is the tracer every span in the module starts from. It is a
// no-op until InitTracing finds an endpoint.
var Tracer trace.Tracer = noop.NewTracerProvider().Tracer(TracerName)

// InitTracing exports spans to the OTLP gRPC endpoint named by
// OTLP_ENDPOINT. Without one it installs a no-op tracer.
func InitTracing(ctx context.Context, version string) (shutdown func(context.Context) error, err error) {
	endpoint := os.Getenv(EnvEndpoint)
	if endpoint == "" {
		Tracer = noop.NewTracerProvider().Tracer(TracerName)
		return func(context.Context) error { return nil }, nil
	}

	ratio, err := sampleRatio()
	if err != nil {
		return nil, err
	}

	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(version),
			attribute.String("service.environment", environment()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	Tracer = tp.Tracer(TracerName)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// sampleRatio reads OTLP_SAMPLE_RATIO, defaulting to every trace.
func sampleRatio() (float64, error) {
	v := os.Getenv(EnvSampleRatio)
	if v == "" {
		return 1, nil
	}
	r, err := strconv.ParseFloat(v, 64)
	if err != nil || r < 0 || r > 1 {
		return 0, fmt.Errorf("%s must be a number between 0 and 1, got %q", EnvSampleRatio, v)
	}
	return r, nil
}

func environment() string {
	if env := os.Getenv(EnvEnvironment); env != "" {
		return env
	}
	return "development"
}

// StartSpan starts a span from Tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer.Start(ctx, name, opts...)
}

// StartTileSpan starts a span tagged with the tile coordinates.
func StartTileSpan(ctx context.Context, name string, id maptile.Tile, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer.Start(ctx, name, trace.WithAttributes(append(TileAttributes(id), attrs...)...))
}

// recording returns the span in ctx, or nil when it is not recording.
func recording(ctx context.Context) trace.Span {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		return span
	}
	return nil
}

// RecordError records err on the span in ctx.
func RecordError(ctx context.Context, err error, opts ...trace.EventOption) {
	if span := recording(ctx); span != nil {
		span.RecordError(err, opts...)
	}
}

// SetStatus sets the status of the span in ctx.
func SetStatus(ctx context.Context, code codes.Code, description string) {
	if span := recording(ctx); span != nil {
		span.SetStatus(code, description)
	}
}

// AddEvent adds an event to the span in ctx.
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	if span := recording(ctx); span != nil {
		span.AddEvent(name, opts...)
	}
}

// SetAttributes sets attributes on the span in ctx.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	if span := recording(ctx); span != nil {
		span.SetAttributes(attrs...)
	}
}
