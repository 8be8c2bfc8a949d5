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
		// Return no-op shutdown
		return func(context.Context) error { return nil }, nil
	}

	// Spans go to stderr; stdout belongs to the MCP stdio transport
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
	SpanKindTool     SpanKind = "tool"
	SpanKindPipeline SpanKind = "pipeline"
	SpanKindStore    SpanKind = "store"
	SpanKindInternal SpanKind = "internal"
)

// ToolSpan starts a new span for a tool execution
func ToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "mcp.tool."+toolName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("mcp.tool.name", toolName),
			attribute.String("mcp.span.kind", string(SpanKindTool)),
		),
	)
}

// PipelineSpan starts a new span for a masking or recovery pipeline run
func PipelineSpan(ctx context.Context, pipeline, conversationID string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "masking.pipeline."+pipeline,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("masking.pipeline", pipeline),
			attribute.String("masking.conversation_id", conversationID),
			attribute.String("mcp.span.kind", string(SpanKindPipeline)),
		),
	)
}

// StoreSpan starts a new span for a store operation
func StoreSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "masking.store."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("store.operation", operation),
			attribute.String("mcp.span.kind", string(SpanKindStore)),
		),
	)
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
	span.SetAttributes(attribute.Bool("mcp.success", true))
}

// SetPipelineCounts records how many values a pipeline touched
func SetPipelineCounts(span trace.Span, attempted, applied int) {
	span.SetAttributes(
		attribute.Int("masking.attempted", attempted),
		attribute.Int("masking.applied", applied),
	)
}

// TraceInfo provides trace and span IDs for audit logging
type TraceInfo struct {
	TraceID string
	SpanID  string
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
