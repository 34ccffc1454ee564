package telemetry

import (
	"context"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/argus-labs/sledgehammer/pkg/assert"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// tracing is the tracer handed to the engine and whatever must be flushed when it stops.
type tracing struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// newTracing exports spans over OTLP when enabled and registers the provider and the W3C
// propagators globally, so NATS requests carry the trace across processes. Disabled tracing
// yields a no-op tracer.
func newTracing(ctx context.Context, opts Options) (tracing, error) {
	if !opts.Enabled {
		return tracing{
			tracer:   noop.NewTracerProvider().Tracer(opts.ServiceName),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, resourceAttributes(opts)...))
	if err != nil {
		return tracing{}, eris.Wrap(err, "failed to build trace resource")
	}
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithInsecure())
	if err != nil {
		return tracing{}, eris.Wrap(err, "failed to create OTLP trace exporter")
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(opts.TraceSampleRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tracing{tracer: provider.Tracer(opts.ServiceName), shutdown: provider.Shutdown}, nil
}

// resourceAttributes describes the process: service name and version, the report environment
// and one hammer.tag.<key> attribute per report tag.
func resourceAttributes(opts Options) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(opts.ServiceVersion),
	}
	if env := opts.SentryOptions.Environment; env != "" {
		attrs = append(attrs, attribute.String("deployment.environment.name", env))
	}
	for _, key := range slices.Sorted(maps.Keys(opts.SentryOptions.Tags)) {
		attrs = append(attrs, attribute.String("hammer.tag."+key, opts.SentryOptions.Tags[key]))
	}
	return attrs
}

// sampler samples a rate of root traces and follows the parent's decision otherwise.
func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// newLogger builds the process logger. Every entry carries the service name and version.
func newLogger(opts Options, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(opts.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var w io.Writer
	switch opts.LogFormat {
	case LogFormatPretty:
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case LogFormatJSON:
		w = out
	case LogFormatUndefined:
		assert.Unreachable("log format is validated before setup")
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp().Str("service", opts.ServiceName)
	if opts.ServiceVersion != "" {
		ctx = ctx.Str("version", opts.ServiceVersion)
	}
	return ctx.Logger()
}
