package rpcserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mbilalbenli/pub-dev-mcp/internal/domain"
	"github.com/mbilalbenli/pub-dev-mcp/internal/tools"
)

type echoParams struct {
	Value string `json:"value"`
}

func echoDescriptor(execErr error) *tools.Descriptor {
	return &tools.Descriptor{
		Name:        "echo",
		Description: "test-only echo tool",
		Bind: func(params json.RawMessage) (any, error) {
			var p echoParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, err
				}
			}
			return &p, nil
		},
		Validate: func(req any) error {
			p := req.(*echoParams)
			if p.Value == "invalid" {
				return &tools.ValidationError{Errs: []tools.FieldError{{Field: "value", Message: "must not be \"invalid\""}}}
			}
			return nil
		},
		Execute: func(ctx context.Context, deps *tools.Deps, req any) (any, error) {
			if execErr != nil {
				return nil, execErr
			}
			p := req.(*echoParams)
			return map[string]string{"echo": p.Value}, nil
		},
		Encode: func(resp any) (json.RawMessage, error) {
			return json.Marshal(resp)
		},
	}
}

func newTestServer(execErr error) *Server {
	table := map[string]*tools.Descriptor{"echo": echoDescriptor(execErr)}
	return NewServer(table, &tools.Deps{}, nil, nil)
}

func TestHandleMessage_SuccessfulSingleRequest(t *testing.T) {
	s := newTestServer(nil)
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"echo","params":{"value":"hi"}}`)

	out, ok := s.HandleMessage(context.Background(), body)
	if !ok {
		t.Fatal("expected a response")
	}
	var resp Response
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if string(resp.ID) != "1" {
		t.Fatalf("expected id 1, got %s", resp.ID)
	}
}

func TestHandleMessage_NotificationProducesNoResponse(t *testing.T) {
	s := newTestServer(nil)
	body := []byte(`{"jsonrpc":"2.0","method":"echo","params":{"value":"hi"}}`)

	_, ok := s.HandleMessage(context.Background(), body)
	if ok {
		t.Fatal("expected no response for a notification")
	}
}

func TestHandleMessage_NotificationWithUnknownMethodStillSuppressed(t *testing.T) {
	s := newTestServer(nil)
	body := []byte(`{"jsonrpc":"2.0","method":"nope"}`)

	_, ok := s.HandleMessage(context.Background(), body)
	if ok {
		t.Fatal("expected no response for a notification even on method-not-found")
	}
}

func TestHandleMessage_ParseErrorReturnsNullID(t *testing.T) {
	s := newTestServer(nil)
	body := []byte(`{ "method": "echo" `)

	out, ok := s.HandleMessage(context.Background(), body)
	if !ok {
		t.Fatal("expected a response")
	}
	var resp Response
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Fatalf("expected -32700, got %+v", resp.Error)
	}
	if string(resp.ID) != "null" {
		t.Fatalf("expected null id, got %s", resp.ID)
	}
}

func TestHandleMessage_UnknownMethodIncludesNameInMessage(t *testing.T) {
	s := newTestServer(nil)
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"nope","params":{}}`)

	out, ok := s.HandleMessage(context.Background(), body)
	if !ok {
		t.Fatal("expected a response")
	}
	var resp Response
	_ = json.Unmarshal(out, &resp)
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected -32601, got %+v", resp.Error)
	}
	if !strings.Contains(resp.Error.Message, "nope") {
		t.Fatalf("expected message to mention method name, got %q", resp.Error.Message)
	}
	if string(resp.ID) != "1" {
		t.Fatalf("expected id 1, got %s", resp.ID)
	}
}

func TestHandleMessage_ValidationErrorReturnsInvalidParamsWithFieldData(t *testing.T) {
	s := newTestServer(nil)
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"echo","params":{"value":"invalid"}}`)

	out, _ := s.HandleMessage(context.Background(), body)
	var resp Response
	_ = json.Unmarshal(out, &resp)
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("expected -32602, got %+v", resp.Error)
	}
	if resp.Error.Data == nil {
		t.Fatal("expected data.errors to be populated")
	}
}

func TestHandleMessage_UpstreamUnavailableMapsToDashCode(t *testing.T) {
	s := newTestServer(domain.NewError(domain.KindUpstreamUnavailable, "upstream down", nil))
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"echo","params":{"value":"hi"}}`)

	out, _ := s.HandleMessage(context.Background(), body)
	var resp Response
	_ = json.Unmarshal(out, &resp)
	if resp.Error == nil || resp.Error.Code != CodeUpstreamError {
		t.Fatalf("expected -32002, got %+v", resp.Error)
	}
}

func TestHandleMessage_CancelledMapsToDash32001(t *testing.T) {
	s := newTestServer(domain.NewError(domain.KindCancelled, "cancelled", context.Canceled))
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"echo","params":{"value":"hi"}}`)

	out, _ := s.HandleMessage(context.Background(), body)
	var resp Response
	_ = json.Unmarshal(out, &resp)
	if resp.Error == nil || resp.Error.Code != CodeCancelled {
		t.Fatalf("expected -32001, got %+v", resp.Error)
	}
}

func TestHandleMessage_BatchPreservesOrder(t *testing.T) {
	s := newTestServer(nil)
	body := []byte(`[
		{"jsonrpc":"2.0","id":1,"method":"echo","params":{"value":"a"}},
		{"jsonrpc":"2.0","id":2,"method":"echo","params":{"value":"b"}},
		{"jsonrpc":"2.0","id":3,"method":"echo","params":{"value":"c"}}
	]`)

	out, ok := s.HandleMessage(context.Background(), body)
	if !ok {
		t.Fatal("expected a response")
	}
	var resps []Response
	if err := json.Unmarshal(out, &resps); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resps) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(resps))
	}
	for i, want := range []string{"1", "2", "3"} {
		if string(resps[i].ID) != want {
			t.Fatalf("response %d: expected id %s, got %s", i, want, resps[i].ID)
		}
	}
}

func TestHandleMessage_EmptyBatchIsInvalidRequest(t *testing.T) {
	s := newTestServer(nil)
	out, ok := s.HandleMessage(context.Background(), []byte(`[]`))
	if !ok {
		t.Fatal("expected a response")
	}
	var resp Response
	_ = json.Unmarshal(out, &resp)
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Fatalf("expected -32600, got %+v", resp.Error)
	}
}

func TestHandleMessage_AllNotificationBatchProducesNoBody(t *testing.T) {
	s := newTestServer(nil)
	body := []byte(`[
		{"jsonrpc":"2.0","method":"echo","params":{"value":"a"}},
		{"jsonrpc":"2.0","method":"echo","params":{"value":"b"}}
	]`)
	_, ok := s.HandleMessage(context.Background(), body)
	if ok {
		t.Fatal("expected no response body for an all-notification batch")
	}
}

func TestHandleMessage_InvalidEnvelopeShapeIsInvalidRequest(t *testing.T) {
	s := newTestServer(nil)
	body := []byte(`{"jsonrpc":"1.0","id":1,"method":"echo"}`)
	out, ok := s.HandleMessage(context.Background(), body)
	if !ok {
		t.Fatal("expected a response")
	}
	var resp Response
	_ = json.Unmarshal(out, &resp)
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Fatalf("expected -32600, got %+v", resp.Error)
	}
}
