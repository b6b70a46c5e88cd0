// Package protocol defines the JSON-RPC 2.0 message shapes exchanged with a
// language server and the codec that moves them on and off the wire.
//
// Requests carry an id assigned by the client at send time, notifications
// carry none, and responses carry exactly one of result or error. Framing
// (Content-Length headers) is owned by the transport layer, not this package.
package protocol

import "encoding/json"

// Version is the JSON-RPC protocol version sent with every message.
const Version = "2.0"

// Well-known LSP method names used across the client.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "initialized"
	MethodShutdown    = "shutdown"
	MethodExit        = "exit"

	MethodDidOpen   = "textDocument/didOpen"
	MethodDidChange = "textDocument/didChange"
	MethodDidSave   = "textDocument/didSave"
	MethodDidClose  = "textDocument/didClose"

	MethodPublishDiagnostics = "textDocument/publishDiagnostics"
	MethodWindowLogMessage   = "window/logMessage"
	MethodWindowShowMessage  = "window/showMessage"
)

// Request is an outbound call that expects a response. The id is assigned by
// the client when the request is serialized, never by the caller.
type Request struct {
	Method string
	Params any
}

// NewRequest creates a request for the given method.
func NewRequest(method string, params any) Request {
	return Request{Method: method, Params: params}
}

// Initialize creates the initialize handshake request.
func Initialize(params any) Request {
	return NewRequest(MethodInitialize, params)
}

// Shutdown creates the shutdown request.
func Shutdown() Request {
	return NewRequest(MethodShutdown, nil)
}

// Payload serializes the request to its wire shape with the given id.
func (r Request) Payload(id int64) ([]byte, error) {
	return json.Marshal(requestWire{
		JSONRPC: Version,
		ID:      id,
		Method:  r.Method,
		Params:  r.Params,
	})
}

// Notification is a one-way message. It carries no id and no response is
// ever expected or sent.
type Notification struct {
	Method string
	Params any
}

// NewNotification creates a notification for the given method.
func NewNotification(method string, params any) Notification {
	return Notification{Method: method, Params: params}
}

// Exit creates the exit notification that asks the server process to quit.
func Exit() Notification {
	return NewNotification(MethodExit, nil)
}

// Initialized creates the initialized notification sent after the
// initialize handshake completes.
func Initialized() Notification {
	return NewNotification(MethodInitialized, struct{}{})
}

// DidOpen creates a textDocument/didOpen notification.
func DidOpen(params any) Notification {
	return NewNotification(MethodDidOpen, params)
}

// DidChange creates a textDocument/didChange notification.
func DidChange(params any) Notification {
	return NewNotification(MethodDidChange, params)
}

// DidSave creates a textDocument/didSave notification.
func DidSave(params any) Notification {
	return NewNotification(MethodDidSave, params)
}

// DidClose creates a textDocument/didClose notification.
func DidClose(params any) Notification {
	return NewNotification(MethodDidClose, params)
}

// Payload serializes the notification to its wire shape.
func (n Notification) Payload() ([]byte, error) {
	return json.Marshal(notificationWire{
		JSONRPC: Version,
		Method:  n.Method,
		Params:  n.Params,
	})
}

// Response is a reply the client sends to a server-initiated request.
// Exactly one of Result or Error should be set.
type Response struct {
	ID     int64
	Result any
	Error  *RPCError
}

// NewResponse creates a success response for a server-initiated request.
func NewResponse(id int64, result any) Response {
	return Response{ID: id, Result: result}
}

// NewErrorResponse creates an error response for a server-initiated request.
func NewErrorResponse(id int64, code int, message string) Response {
	return Response{ID: id, Error: &RPCError{Code: code, Message: message}}
}

// Payload serializes the response to its wire shape.
func (r Response) Payload() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(errorResponseWire{
			JSONRPC: Version,
			ID:      r.ID,
			Error:   r.Error,
		})
	}
	return json.Marshal(resultResponseWire{
		JSONRPC: Version,
		ID:      r.ID,
		Result:  r.Result,
	})
}

// Wire envelopes. Result is deliberately not omitempty: a success response
// must carry the result key even when the result is null.
type requestWire struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type notificationWire struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type resultResponseWire struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Result  any    `json:"result"`
}

type errorResponseWire struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int64     `json:"id"`
	Error   *RPCError `json:"error"`
}
