package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Meters bundles the counters/histograms the worker loops and tool gateway
// record against.
type Meters struct {
	DispatchClaims     metric.Int64Counter
	ToolExecutions     metric.Int64Counter
	ToolLatency        metric.Float64Histogram
	TurnLatency        metric.Float64Histogram
}

// NewMeters builds Meters against the global MeterProvider (a no-op provider
// when no SDK has been installed, matching Tracer's no-op fallback).
func NewMeters(serviceName string) (*Meters, error) {
	meter := otel.Meter(serviceName)

	claims, err := meter.Int64Counter("voicerelay.dispatch.claims",
		metric.WithDescription("Number of runtime dispatches claimed"))
	if err != nil {
		return nil, err
	}
	executions, err := meter.Int64Counter("voicerelay.tool.executions",
		metric.WithDescription("Number of tool executions, by status"))
	if err != nil {
		return nil, err
	}
	toolLatency, err := meter.Float64Histogram("voicerelay.tool.latency_ms",
		metric.WithDescription("Tool call latency in milliseconds"))
	if err != nil {
		return nil, err
	}
	turnLatency, err := meter.Float64Histogram("voicerelay.turn.latency_ms",
		metric.WithDescription("User-turn end-to-end latency in milliseconds"))
	if err != nil {
		return nil, err
	}

	return &Meters{
		DispatchClaims: claims,
		ToolExecutions: executions,
		ToolLatency:    toolLatency,
		TurnLatency:    turnLatency,
	}, nil
}

// RecordToolExecution records one tool call outcome.
func (m *Meters) RecordToolExecution(ctx context.Context, status string, latencyMS float64) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.ToolExecutions.Add(ctx, 1, attrs)
	m.ToolLatency.Record(ctx, latencyMS, metric.WithAttributes(attribute.String("status", status)))
}
