// Package telemetry wires the observability side of the JSON-RPC pipeline:
// an OpenTelemetry span per tool call, a zap structured log line correlated
// to that span's trace id, and a SHA-256 audit digest of each request and
// response payload.
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mbilalbenli/pub-dev-mcp/internal/domain"
	"github.com/mbilalbenli/pub-dev-mcp/internal/rpcserver"
)

// Recorder implements rpcserver.Telemetry: it opens one span per tool call,
// named "mcp.<tool>" with the request's rpc system, method, and id as
// attributes.
type Recorder struct {
	tracer trace.Tracer
	logger *zap.Logger
}

// NewRecorder builds a Recorder over the given tracer and logger.
func NewRecorder(tracer trace.Tracer, logger *zap.Logger) *Recorder {
	return &Recorder{tracer: tracer, logger: logger}
}

// StartSpan implements rpcserver.Telemetry.
func (r *Recorder) StartSpan(ctx context.Context, tool, method string, requestID json.RawMessage) (context.Context, rpcserver.Span) {
	ctx, sp := r.tracer.Start(ctx, "mcp."+tool, trace.WithAttributes(
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.method", method),
		attribute.String("rpc.request.id", string(requestID)),
	))
	return ctx, &recordingSpan{span: sp, logger: r.logger, tool: tool, method: method, start: time.Now()}
}

type recordingSpan struct {
	span      trace.Span
	logger    *zap.Logger
	tool      string
	method    string
	start     time.Time
	status    string
	errorCode int
}

// SetStatus implements rpcserver.Span. status is one of OK, ERROR,
// INVALID_ARGUMENT, CANCELLED, EXCEPTION.
func (s *recordingSpan) SetStatus(status string, errorCode int) {
	s.status = status
	s.errorCode = errorCode
}

// End implements rpcserver.Span: it tags the span, ends it, and emits one
// structured log line carrying the span's trace id as a correlator.
func (s *recordingSpan) End() {
	s.span.SetAttributes(attribute.String("rpc.status_code", s.status))
	if s.status == "ERROR" {
		s.span.SetAttributes(attribute.Int("rpc.error_code", s.errorCode))
	}
	s.span.End()

	fields := []zap.Field{
		zap.String("tool", s.tool),
		zap.String("rpc.method", s.method),
		zap.String("rpc.status_code", s.status),
		zap.Duration("duration", time.Since(s.start)),
		zap.String("trace_id", s.span.SpanContext().TraceID().String()),
	}
	if s.status == "ERROR" {
		fields = append(fields, zap.Int("rpc.error_code", s.errorCode))
	}
	if s.logger != nil {
		s.logger.Info("mcp tool call", fields...)
	}
}

// AuditRecorder implements rpcserver.AuditLogger, hashing request and
// response payloads rather than retaining them.
type AuditRecorder struct {
	logger *zap.Logger
}

// NewAuditRecorder builds an AuditRecorder that logs through logger.
func NewAuditRecorder(logger *zap.Logger) *AuditRecorder {
	return &AuditRecorder{logger: logger}
}

// Record implements rpcserver.AuditLogger.
func (a *AuditRecorder) Record(tool string, requestPayload, responsePayload []byte) {
	entry, err := domain.NewAuditLogEntry(time.Now(), tool, domain.Digest(requestPayload), domain.Digest(responsePayload))
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("dropping malformed audit entry", zap.String("tool", tool), zap.Error(err))
		}
		return
	}
	if a.logger != nil {
		a.logger.Info("audit",
			zap.String("tool", entry.Tool()),
			zap.Time("timestamp", entry.Timestamp()),
			zap.String("requestDigest", entry.RequestDigest()),
			zap.String("responseDigest", entry.ResponseDigest()),
		)
	}
}
