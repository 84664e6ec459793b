// Package telemetry wraps the OpenTelemetry tracing setup used around the
// suspension points of the call pipeline: the handoff/claim/launch loops
// and outbound TTS/STT calls.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the tracer provider. An empty Endpoint yields a no-op
// tracer so local/dev runs never require a collector.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Insecure       bool
	SamplingRate   float64
}

// Tracer is a thin wrapper over an otel trace.Tracer plus its shutdown hook.
type Tracer struct {
	tracer trace.Tracer
}

// New builds a Tracer and returns its shutdown function.
func New(ctx context.Context, cfg Config) (*Tracer, func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "voicerelay"
	}
	if cfg.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, func(context.Context) error { return nil }, nil
	}
	if cfg.SamplingRate == 0 {
		cfg.SamplingRate = 1.0
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		res = resource.Default()
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

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return &Tracer{tracer: provider.Tracer(cfg.ServiceName)}, provider.Shutdown, nil
}

// Start begins a span of the given kind.
func (t *Tracer) Start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// StartDispatch spans one handoff/claim/launch loop iteration.
func (t *Tracer) StartDispatch(ctx context.Context, stage, callID string) (context.Context, trace.Span) {
	return t.Start(ctx, "dispatch."+stage, trace.SpanKindInternal,
		attribute.String("call.id", callID))
}

// StartToolCall spans one outbound tool HTTP call.
func (t *Tracer) StartToolCall(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return t.Start(ctx, "tool."+toolName, trace.SpanKindClient,
		attribute.String("tool.name", toolName))
}

// StartVoiceProvider spans one outbound TTS/STT provider call.
func (t *Tracer) StartVoiceProvider(ctx context.Context, kind, provider string) (context.Context, trace.Span) {
	return t.Start(ctx, "voice."+kind, trace.SpanKindClient,
		attribute.String("voice.provider", provider))
}
