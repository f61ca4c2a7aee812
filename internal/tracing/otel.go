// Package tracing provides distributed tracing support using OpenTelemetry.
package tracing

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool
}

// Global tracer
var globalTracer trace.Tracer

// InitOTel initializes OpenTelemetry with the given configuration.
// Returns a shutdown function that should be called on application exit.
func InitOTel(cfg OTelConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	// Spans go to stderr; stdout carries the MCP transport.
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	globalTracer = tp.Tracer(cfg.ServiceName)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// GetTracer returns the global tracer
func GetTracer() trace.Tracer {
	if globalTracer == nil {
		// Return no-op tracer if not initialized
		return otel.Tracer("noop")
	}
	return globalTracer
}

// SpanKind represents the role of a span
type SpanKind string

// Span kinds for categorizing trace spans
const (
	SpanKindTool      SpanKind = "tool"
	SpanKindCycle     SpanKind = "cycle"
	SpanKindPredictor SpanKind = "predictor"
	SpanKindNotify    SpanKind = "notify"
)

// ToolSpan starts a new span for a tool execution
func ToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "mcp.tool."+toolName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("mcp.tool.name", toolName),
			attribute.String("logs.span.kind", string(SpanKindTool)),
		),
	)
}

// CycleSpan starts the root span of an alert check cycle.
func CycleSpan(ctx context.Context, cycleID, trigger string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "alerts.cycle",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("alerts.cycle.id", cycleID),
			attribute.String("alerts.cycle.trigger", trigger),
			attribute.String("logs.span.kind", string(SpanKindCycle)),
		),
	)
}

// PhaseSpan starts a span for one phase of a cycle.
func PhaseSpan(ctx context.Context, phase string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "alerts.phase."+phase,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("alerts.phase", phase),
			attribute.String("logs.span.kind", string(SpanKindCycle)),
		),
	)
}

// PredictorSpan starts a span for a model operation (train, predict, load).
func PredictorSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "predictor."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("predictor.operation", operation),
			attribute.String("logs.span.kind", string(SpanKindPredictor)),
		),
	)
}

// NotifySpan starts a span for an outbound alert delivery.
func NotifySpan(ctx context.Context, channel string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "notify."+channel,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("notify.channel", channel),
			attribute.String("logs.span.kind", string(SpanKindNotify)),
		),
	)
}

// AddToolAttributes adds common tool attributes to a span
func AddToolAttributes(span trace.Span, attrs map[string]interface{}) {
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			span.SetAttributes(attribute.String("mcp.tool.arg."+k, val))
		case int:
			span.SetAttributes(attribute.Int("mcp.tool.arg."+k, val))
		case int64:
			span.SetAttributes(attribute.Int64("mcp.tool.arg."+k, val))
		case float64:
			span.SetAttributes(attribute.Float64("mcp.tool.arg."+k, val))
		case bool:
			span.SetAttributes(attribute.Bool("mcp.tool.arg."+k, val))
		}
	}
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("error", true))
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetAttributes(attribute.Bool("logs.success", true))
}

// TraceInfo carries trace and span IDs for audit logging and HTTP header propagation
type TraceInfo struct {
	TraceID string
	SpanID  string
}

// HTTP headers for trace propagation
const (
	TraceIDHeader   = "X-Trace-ID"
	SpanIDHeader    = "X-Span-ID"
	RequestIDHeader = "X-Request-ID"
)

// Headers returns trace info as HTTP headers for propagation
func (t *TraceInfo) Headers() map[string]string {
	if t.TraceID == "" {
		return map[string]string{}
	}
	return map[string]string{
		TraceIDHeader:   t.TraceID,
		SpanIDHeader:    t.SpanID,
		RequestIDHeader: t.TraceID,
	}
}

// FromContext extracts trace information from context for audit logging
func FromContext(ctx context.Context) *TraceInfo {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.SpanContext().IsValid() {
		return &TraceInfo{}
	}

	sc := span.SpanContext()
	return &TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}
