// Package rpcserver implements the JSON-RPC 2.0 pipeline: parse, validate
// the envelope, dispatch to a tool descriptor, and shape the result or
// error into a wire response. It is transport-agnostic — both the stdio
// and HTTP transports hand it a raw request body and get a raw response
// body back.
package rpcserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mbilalbenli/pub-dev-mcp/internal/domain"
	"github.com/mbilalbenli/pub-dev-mcp/internal/tools"
)

// Canonical JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeCancelled      = -32001
	CodeUpstreamError  = -32002
)

// Request is one JSON-RPC 2.0 request envelope. id and params are kept as
// json.RawMessage so numeric, string, and null ids round-trip without
// loss.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r *Request) isNotification() bool { return len(r.ID) == 0 }

// Response is one JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

var nullID = json.RawMessage("null")

// Span is the per-call tracing handle a Telemetry implementation returns.
// Status is one of OK, ERROR, INVALID_ARGUMENT, CANCELLED, EXCEPTION.
type Span interface {
	SetStatus(status string, errorCode int)
	End()
}

// Telemetry opens the per-tool-call tracing span. A nil Telemetry on Server
// disables tracing without changing any other behavior.
type Telemetry interface {
	StartSpan(ctx context.Context, tool, method string, requestID json.RawMessage) (context.Context, Span)
}

// AuditLogger records one entry per completed call, hashing the request and
// response payloads. A nil AuditLogger on Server disables auditing.
type AuditLogger interface {
	Record(tool string, requestPayload, responsePayload []byte)
}

// Server dispatches JSON-RPC requests onto a static tool descriptor table.
type Server struct {
	descriptors map[string]*tools.Descriptor
	deps        *tools.Deps
	telemetry   Telemetry
	audit       AuditLogger
}

// NewServer builds a Server over the given descriptor table and shared
// dependencies. telemetry and audit may be nil.
func NewServer(descriptors map[string]*tools.Descriptor, deps *tools.Deps, telemetry Telemetry, audit AuditLogger) *Server {
	return &Server{descriptors: descriptors, deps: deps, telemetry: telemetry, audit: audit}
}

// HandleMessage processes one raw request body, which may be a single
// object or a batch array. It returns the raw response body and whether
// one should be written at all — false means every request in the body was
// a notification and no bytes should be sent.
func (s *Server) HandleMessage(ctx context.Context, body []byte) ([]byte, bool) {
	trimmed := bytes.TrimSpace(body)

	if len(trimmed) > 0 && trimmed[0] == '[' {
		return s.handleBatch(ctx, trimmed)
	}
	return s.handleSingleBody(ctx, trimmed)
}

func (s *Server) handleSingleBody(ctx context.Context, body []byte) ([]byte, bool) {
	resp := s.handleSingle(ctx, body)
	if resp == nil {
		return nil, false
	}
	return mustMarshal(resp), true
}

func (s *Server) handleBatch(ctx context.Context, body []byte) ([]byte, bool) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return mustMarshal(errorResponse(nullID, CodeParseError, "parse error: "+err.Error(), nil)), true
	}
	if len(raws) == 0 {
		return mustMarshal(errorResponse(nullID, CodeInvalidRequest, "invalid request: batch must not be empty", nil)), true
	}

	responses := make([]*Response, len(raws))
	var wg sync.WaitGroup
	for i, raw := range raws {
		wg.Add(1)
		go func(i int, raw json.RawMessage) {
			defer wg.Done()
			responses[i] = s.handleSingle(ctx, raw)
		}(i, raw)
	}
	wg.Wait()

	kept := make([]*Response, 0, len(responses))
	for _, r := range responses {
		if r != nil {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil, false
	}
	return mustMarshal(kept), true
}

// handleSingle runs one request through parse -> envelope validation ->
// dispatch -> bind/validate -> execute -> encode. It returns nil when the
// request was a notification and produced no reportable pre-dispatch
// error. A request is a notification when its id is absent.
func (s *Server) handleSingle(ctx context.Context, raw json.RawMessage) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nullID, CodeParseError, "parse error: "+err.Error(), nil)
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(idOrNull(req.ID), CodeInvalidRequest, "invalid request: jsonrpc must be \"2.0\" and method must be a non-empty string", nil)
	}

	notification := req.isNotification()

	descriptor, ok := s.descriptors[req.Method]
	if !ok {
		if notification {
			return nil
		}
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
	}

	var span Span
	if s.telemetry != nil {
		ctx, span = s.telemetry.StartSpan(ctx, req.Method, req.Method, req.ID)
		defer span.End()
	}

	boundReq, err := descriptor.Bind(req.Params)
	if err == nil {
		err = descriptor.Validate(boundReq)
	}
	if err != nil {
		if span != nil {
			span.SetStatus("INVALID_ARGUMENT", CodeInvalidParams)
		}
		if notification {
			return nil
		}
		return s.finish(req, descriptor, errorFromBindOrValidate(req.ID, err))
	}

	result, err := descriptor.Execute(ctx, s.deps, boundReq)
	if err != nil {
		code, status := classifyExecuteError(err)
		if span != nil {
			span.SetStatus(status, code)
		}
		if notification {
			return nil
		}
		return s.finish(req, descriptor, errorResponse(req.ID, code, executeErrorMessage(err), executeErrorData(err)))
	}

	encoded, err := descriptor.Encode(result)
	if err != nil {
		if span != nil {
			span.SetStatus("EXCEPTION", CodeInternalError)
		}
		if notification {
			return nil
		}
		return s.finish(req, descriptor, errorResponse(req.ID, CodeInternalError, "encoding response", nil))
	}

	if span != nil {
		span.SetStatus("OK", 0)
	}
	if notification {
		return nil
	}
	resp := &Response{JSONRPC: "2.0", ID: req.ID, Result: encoded}
	return s.finish(req, descriptor, resp)
}

// finish records the audit entry for a completed (non-notification)
// exchange before returning the response to the caller.
func (s *Server) finish(req Request, descriptor *tools.Descriptor, resp *Response) *Response {
	if s.audit != nil {
		s.audit.Record(descriptor.Name, req.Params, mustMarshal(resp))
	}
	return resp
}

func errorFromBindOrValidate(id json.RawMessage, err error) *Response {
	var verr *tools.ValidationError
	if errors.As(err, &verr) {
		return errorResponse(id, CodeInvalidParams, verr.Error(), map[string]any{"errors": verr.Errs})
	}
	var derr *domain.Error
	if errors.As(err, &derr) {
		return errorResponse(id, CodeInvalidParams, derr.Msg, nil)
	}
	return errorResponse(id, CodeInvalidParams, err.Error(), nil)
}

// classifyExecuteError maps a domain error's Kind to a JSON-RPC code and a
// span status string.
func classifyExecuteError(err error) (int, string) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		switch derr.Kind {
		case domain.KindInvalidInput:
			return CodeInvalidParams, "INVALID_ARGUMENT"
		case domain.KindCancelled:
			return CodeCancelled, "CANCELLED"
		case domain.KindUpstreamUnavailable, domain.KindUpstreamNotFound, domain.KindUpstreamRateLimited:
			return CodeUpstreamError, "ERROR"
		default:
			return CodeInternalError, "EXCEPTION"
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancelled, "CANCELLED"
	}
	return CodeInternalError, "EXCEPTION"
}

func executeErrorMessage(err error) string {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return derr.Msg
	}
	return "internal error"
}

// executeErrorData carries the last upstream status line for -32002 and
// nothing for other codes.
func executeErrorData(err error) any {
	var derr *domain.Error
	if errors.As(err, &derr) {
		switch derr.Kind {
		case domain.KindUpstreamUnavailable, domain.KindUpstreamNotFound, domain.KindUpstreamRateLimited:
			return map[string]string{"upstream": derr.Error()}
		}
	}
	return nil
}

func errorResponse(id json.RawMessage, code int, message string, data any) *Response {
	if len(id) == 0 {
		id = nullID
	}
	return &Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message, Data: data}}
}

func idOrNull(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return nullID
	}
	return id
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Only invoked on values this package itself constructs; a marshal
		// failure here means Response/Error grew a field JSON cannot encode.
		panic(fmt.Sprintf("rpcserver: failed to marshal response: %v", err))
	}
	return b
}
