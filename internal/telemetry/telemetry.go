// Package telemetry provides OpenTelemetry tracing for gateway calls.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/terra-clan/koi-prep"

// Config holds telemetry configuration
type Config struct {
	Enabled     bool
	Endpoint    string // OTLP/HTTP collector, e.g. "localhost:4318"
	ServiceName string
	Version     string
}

var provider *sdktrace.TracerProvider

// Init installs the global tracer provider. With telemetry disabled the
// global no-op provider stays in place and spans cost nothing.
func Init(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		return nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithURLPath("/v1/traces"),
	)
	if err != nil {
		return err
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	res := resource.NewWithAttributes(
		"",
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(version),
	)

	provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return nil
}

// Shutdown flushes pending spans and stops the exporter
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return provider.Shutdown(shutdownCtx)
}

// Tracer returns the service tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// GatewaySpan wraps the span of one gateway operation
type GatewaySpan struct {
	span      trace.Span
	startTime time.Time
}

// StartGatewaySpan starts a span for a gateway operation
func StartGatewaySpan(ctx context.Context, operation, model string) (context.Context, *GatewaySpan) {
	ctx, span := Tracer().Start(ctx, "gateway."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.operation", operation),
			attribute.String("llm.request.model", model),
		),
	)
	return ctx, &GatewaySpan{span: span, startTime: time.Now()}
}

// SetAttempts records how many HTTP attempts the call took
func (s *GatewaySpan) SetAttempts(n int) {
	s.span.SetAttributes(attribute.Int("llm.attempts", n))
}

// SetSizes records prompt and completion sizes in bytes
func (s *GatewaySpan) SetSizes(prompt, completion int) {
	s.span.SetAttributes(
		attribute.Int("llm.prompt.bytes", prompt),
		attribute.Int("llm.completion.bytes", completion),
	)
}

// SetTokens records token usage when the service reports it
func (s *GatewaySpan) SetTokens(promptTokens, completionTokens int) {
	if promptTokens > 0 {
		s.span.SetAttributes(attribute.Int("llm.token_count.prompt", promptTokens))
	}
	if completionTokens > 0 {
		s.span.SetAttributes(attribute.Int("llm.token_count.completion", completionTokens))
	}
}

// SetError marks the span failed
func (s *GatewaySpan) SetError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// End completes the span and returns the elapsed time
func (s *GatewaySpan) End() time.Duration {
	elapsed := time.Since(s.startTime)
	s.span.SetAttributes(attribute.Int64("llm.latency_ms", elapsed.Milliseconds()))
	s.span.End()
	return elapsed
}
