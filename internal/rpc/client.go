package rpc

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/lspwire/internal/config"
	"github.com/dshills/lspwire/internal/protocol"
	"github.com/dshills/lspwire/internal/transport"
)

// DefaultSyncRequestTimeout bounds ExecuteRequest when the caller does not
// supply a timeout.
const DefaultSyncRequestTimeout = 1 * time.Second

// ResponseHandler consumes the result of a successful asynchronous request.
type ResponseHandler func(result json.RawMessage)

// ErrorHandler consumes an error response. A nil error means the request
// could not be sent at all.
type ErrorHandler func(rpcErr *protocol.RPCError)

// RequestHandler handles a server-initiated request. The id is needed to
// send a response back with SendResponse.
type RequestHandler func(id int64, params json.RawMessage)

// NotificationHandler handles a server notification.
type NotificationHandler func(params json.RawMessage)

// pendingEntry records how the eventual response to an outstanding request
// should be delivered: through registered handlers for asynchronous
// requests, or through a one-shot channel for a blocked synchronous caller.
type pendingEntry struct {
	handler    ResponseHandler
	errHandler ErrorHandler
	done       chan json.RawMessage
}

// Client exchanges JSON-RPC messages with one language server. It assigns
// request ids, correlates responses, dispatches server-initiated traffic to
// registered handlers, and reports transport failure and crashes.
type Client struct {
	mu        sync.Mutex
	transport transport.Transport
	nextID    int64
	pending   map[int64]pendingEntry
	exiting   bool

	handlers *handlerRegistry

	crashHandler         func()
	transportFailHandler func()
	errorDisplayHandler  func(msg string)

	settings config.Settings
	log      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for protocol diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient creates a client over the given transport and starts the
// transport's delivery goroutine.
func NewClient(t transport.Transport, settings config.Settings, opts ...Option) (*Client, error) {
	c := &Client{
		transport: t,
		pending:   make(map[int64]pendingEntry),
		handlers:  newHandlerRegistry(),
		settings:  settings,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.errorDisplayHandler = func(msg string) {
		c.log.Warn(msg)
	}

	if err := t.Start(c.receivePayload, c.onTransportClosed); err != nil {
		return nil, err
	}
	return c, nil
}

// SendRequest sends a request asynchronously. The handler receives the
// result when the response arrives; errHandler receives error responses.
// With no transport attached nothing is sent and errHandler, if supplied,
// is invoked once, synchronously, with a nil error.
func (c *Client) SendRequest(req protocol.Request, handler ResponseHandler, errHandler ErrorHandler) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	t := c.transport
	if t == nil {
		c.mu.Unlock()
		c.log.Debug("unable to send", "method", req.Method)
		if errHandler != nil {
			errHandler(nil)
		}
		return
	}
	c.pending[id] = pendingEntry{handler: handler, errHandler: errHandler}
	c.mu.Unlock()

	payload, err := req.Payload(id)
	if err != nil {
		c.removePending(id)
		c.log.Error("marshal request failed", "method", req.Method, "error", err)
		if errHandler != nil {
			errHandler(nil)
		}
		return
	}

	c.sendPayload(t, req.Method, payload)
}

// ExecuteRequest sends a request and blocks the calling goroutine until the
// response arrives or the timeout elapses (DefaultSyncRequestTimeout when
// zero). It returns the raw result, or nil on timeout, error response, or
// missing transport; it never panics or returns an error to the caller.
func (c *Client) ExecuteRequest(req protocol.Request, timeout time.Duration) json.RawMessage {
	if timeout <= 0 {
		timeout = DefaultSyncRequestTimeout
	}

	c.mu.Lock()
	t := c.transport
	if t == nil {
		c.mu.Unlock()
		c.log.Debug("unable to send", "method", req.Method)
		return nil
	}
	c.nextID++
	id := c.nextID
	done := c.registerWaitLocked(id)
	c.mu.Unlock()

	payload, err := req.Payload(id)
	if err != nil {
		c.removePending(id)
		c.log.Error("marshal request failed", "method", req.Method, "error", err)
		return nil
	}

	c.sendPayload(t, req.Method, payload)
	return c.awaitResult(req.Method, id, done, timeout)
}

// SendNotification sends a one-way message. No pending state is created and
// no response is ever expected.
func (c *Client) SendNotification(n protocol.Notification) {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		c.log.Debug("unable to send", "method", n.Method)
		return
	}

	payload, err := n.Payload()
	if err != nil {
		c.log.Error("marshal notification failed", "method", n.Method, "error", err)
		return
	}
	c.sendPayload(t, n.Method, payload)
}

// SendResponse replies to a server-initiated request. The client is the
// answering side here, so no pending entry is created.
func (c *Client) SendResponse(resp protocol.Response) {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		c.log.Debug("unable to send response", "id", resp.ID)
		return
	}

	payload, err := resp.Payload()
	if err != nil {
		c.log.Error("marshal response failed", "id", resp.ID, "error", err)
		return
	}
	c.sendPayload(t, "response", payload)
}

// Exit marks the client as exiting and sends the exit notification. The
// flag suppresses crash handling when the transport subsequently closes.
func (c *Client) Exit() {
	c.mu.Lock()
	c.exiting = true
	c.mu.Unlock()
	c.SendNotification(protocol.Exit())
}

// OnRequest registers the handler for a server-initiated request method,
// replacing any previous registration.
func (c *Client) OnRequest(method string, handler RequestHandler) {
	c.handlers.setRequest(method, handler)
}

// OnNotification registers the handler for a notification method, replacing
// any previous registration.
func (c *Client) OnNotification(method string, handler NotificationHandler) {
	c.handlers.setNotification(method, handler)
}

// SetCrashHandler registers the callback invoked when the transport closes
// unexpectedly, after the transport-failure handler.
func (c *Client) SetCrashHandler(fn func()) {
	c.mu.Lock()
	c.crashHandler = fn
	c.mu.Unlock()
}

// SetTransportFailureHandler registers the callback invoked first when the
// transport closes unexpectedly, typically to terminate the server process.
func (c *Client) SetTransportFailureHandler(fn func()) {
	c.mu.Lock()
	c.transportFailHandler = fn
	c.mu.Unlock()
}

// SetErrorDisplayHandler registers the sink for protocol-level error
// messages that have no dedicated error handler. The default logs them.
func (c *Client) SetErrorDisplayHandler(fn func(msg string)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.errorDisplayHandler = fn
	c.mu.Unlock()
}

// Exiting reports whether Exit has been called.
func (c *Client) Exiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exiting
}

// sendPayload writes one serialized message through the transport. Send
// failures are logged; a failing transport will report closure on its own.
func (c *Client) sendPayload(t transport.Transport, method string, payload []byte) {
	c.log.Debug("send", "method", method)
	if c.settings.LogPayloads {
		c.log.Debug("send payload", "data", truncatePayload(payload))
	}
	if err := t.Send(payload); err != nil {
		c.log.Warn("send failed", "method", method, "error", err)
	}
}

// removePending deletes a pending entry under the lock.
func (c *Client) removePending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// displayError routes a protocol error with no dedicated handler to the
// error-display sink.
func (c *Client) displayError(rpcErr *protocol.RPCError) {
	msg := "language server reported an error"
	if rpcErr != nil {
		msg = rpcErr.Message
	}
	c.mu.Lock()
	display := c.errorDisplayHandler
	c.mu.Unlock()
	if display != nil {
		display(msg)
	}
}

// truncatePayload caps payload logging at a readable size.
func truncatePayload(b []byte) string {
	const limit = 400
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
