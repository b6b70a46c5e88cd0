// Package transport provides the byte-level channel between the client and a
// language server process, over either the process's standard streams or a
// TCP socket.
//
// A transport delivers exactly one onMessage callback per complete inbound
// message, in arrival order, from a single delivery goroutine. The close
// callback fires at most once, after which no further messages are delivered.
// Message framing (LSP base protocol Content-Length headers) is owned here;
// payload contents are opaque bytes.
//
// Lifecycle: Disconnected -> Connecting -> Connected -> Closing | Crashed.
// Connecting applies only to the TCP variant and happens inside DialTCP,
// before the transport value exists. Closing and Crashed are terminal; a
// transport is never reused or reconnected.
package transport

import (
	"errors"
	"time"
)

// DefaultConnectWindow bounds the TCP connect retry loop.
const DefaultConnectWindow = 5 * time.Second

// MessageHandler receives one complete inbound message body.
type MessageHandler func(payload []byte)

// CloseHandler signals that the transport closed. Invoked at most once.
type CloseHandler func()

// Transport is the channel the RPC client sends and receives through.
type Transport interface {
	// Start begins delivering inbound messages to onMessage from a single
	// goroutine. onClose fires once when the channel closes for any reason.
	Start(onMessage MessageHandler, onClose CloseHandler) error

	// Send writes one framed message. It fails unless the transport is
	// connected.
	Send(payload []byte) error

	// Close shuts the transport down. Safe to call more than once.
	Close() error
}

// State is the lifecycle state of a transport.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
	StateCrashed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Standard errors returned by transports.
var (
	// ErrNotConnected indicates a send was attempted outside the connected state.
	ErrNotConnected = errors.New("transport not connected")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("transport already started")

	// ErrConnectTimeout indicates the TCP connect window elapsed without a
	// successful connection.
	ErrConnectTimeout = errors.New("timeout connecting to socket")
)
