// Package telemetry instruments the suspension points named in §5 (any
// LLM RPC, tool RPC, gateway RPC, Sonic stream I/O, client-socket I/O)
// with OpenTelemetry spans, grounded on the teacher's go.mod carrying
// go.opentelemetry.io/otel for exactly this purpose across its own
// provider/RPC boundaries.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/meridianbank/agentcore"

// NewProvider builds an SDK tracer provider with a batch span processor
// over exporter. A nil exporter yields a provider with no processors
// registered (spans are created and immediately dropped), which is the
// default for tests and for operators who haven't wired a collector yet.
func NewProvider(exporter sdktrace.SpanExporter) *sdktrace.TracerProvider {
	opts := []sdktrace.TracerProviderOption{}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	return sdktrace.NewTracerProvider(opts...)
}

// tracer returns the package-wide tracer, honoring whatever global
// TracerProvider the runtime installed via otel.SetTracerProvider.
func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// SuspensionPoint names one of §5's suspension points, used as the span
// name and a `suspension_point` attribute for filtering in a trace
// backend.
type SuspensionPoint string

const (
	PointLLM        SuspensionPoint = "llm_rpc"
	PointTool       SuspensionPoint = "tool_rpc"
	PointGateway    SuspensionPoint = "gateway_rpc"
	PointSonic      SuspensionPoint = "sonic_io"
	PointClientSock SuspensionPoint = "client_socket_io"
)

// StartSpan opens a span around one suspension-point call, tagging it
// with sessionID for correlation. The returned func must be deferred
// immediately with the call's resulting error (nil on success).
func StartSpan(ctx context.Context, point SuspensionPoint, sessionID string) (context.Context, func(error)) {
	ctx, span := tracer().Start(ctx, string(point), trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
