package protocol

import (
	"encoding/json"
	"testing"
)

func TestRequestPayload(t *testing.T) {
	req := NewRequest("textDocument/hover", map[string]any{"line": 3})
	payload, err := req.Payload(7)
	if err != nil {
		t.Fatalf("Payload() error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["jsonrpc"] != Version {
		t.Errorf("jsonrpc = %v, want %q", decoded["jsonrpc"], Version)
	}
	if decoded["id"] != float64(7) {
		t.Errorf("id = %v, want 7", decoded["id"])
	}
	if decoded["method"] != "textDocument/hover" {
		t.Errorf("method = %v", decoded["method"])
	}
}

func TestNotificationPayloadHasNoID(t *testing.T) {
	n := Exit()
	payload, err := n.Payload()
	if err != nil {
		t.Fatalf("Payload() error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["id"]; ok {
		t.Error("notification payload contains an id")
	}
	if decoded["method"] != MethodExit {
		t.Errorf("method = %v, want %q", decoded["method"], MethodExit)
	}
}

func TestResponsePayloadAlwaysCarriesResult(t *testing.T) {
	// A success response with a nil result must still serialize the result
	// key; some servers reject replies without it.
	payload, err := NewResponse(4, nil).Payload()
	if err != nil {
		t.Fatalf("Payload() error: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	raw, ok := decoded["result"]
	if !ok {
		t.Fatal("success response missing result key")
	}
	if string(raw) != "null" {
		t.Errorf("result = %s, want null", raw)
	}
	if _, ok := decoded["error"]; ok {
		t.Error("success response carries an error key")
	}
}

func TestErrorResponsePayload(t *testing.T) {
	payload, err := NewErrorResponse(9, CodeMethodNotFound, "nope").Payload()
	if err != nil {
		t.Fatalf("Payload() error: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["result"]; ok {
		t.Error("error response carries a result key")
	}
	if _, ok := decoded["error"]; !ok {
		t.Error("error response missing error key")
	}
}

func TestRPCErrorMessage(t *testing.T) {
	e := &RPCError{Code: CodeInternalError, Message: "boom"}
	if got := e.Error(); got != "rpc error -32603: boom" {
		t.Errorf("Error() = %q", got)
	}

	withData := &RPCError{Code: 1, Message: "x", Data: "detail"}
	if got := withData.Error(); got != "rpc error 1: x (data: detail)" {
		t.Errorf("Error() = %q", got)
	}
}

func TestURIRoundTrip(t *testing.T) {
	uri := FilePathToURI("/home/dev/main.go")
	if uri != "file:///home/dev/main.go" {
		t.Errorf("FilePathToURI = %q", uri)
	}
	if path := URIToFilePath(uri); path != "/home/dev/main.go" {
		t.Errorf("URIToFilePath = %q", path)
	}
}
