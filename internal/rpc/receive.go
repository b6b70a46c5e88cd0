package rpc

import (
	"github.com/dshills/lspwire/internal/protocol"
)

// receivePayload is the transport's message callback. It classifies each
// inbound payload and routes it; anything unclassifiable is logged and
// dropped so one bad message never stalls delivery.
func (c *Client) receivePayload(payload []byte) {
	if c.settings.LogPayloads {
		c.log.Debug("recv payload", "data", truncatePayload(payload))
	}

	msg, err := protocol.Decode(payload)
	if err != nil {
		c.log.Warn("dropping malformed payload", "error", err)
		return
	}

	switch msg.Kind {
	case protocol.KindResponse:
		c.handleResponse(msg)
	case protocol.KindRequest:
		c.dispatchRequest(msg)
	case protocol.KindNotification:
		c.dispatchNotification(msg)
	default:
		c.log.Warn("dropping unclassifiable message")
	}
}

// handleResponse correlates a response to its pending request. The pending
// entry is removed and any synchronous waiter signaled while the lock is
// held, so a waiter that times out concurrently either still finds its entry
// or finds the result already buffered, never neither.
func (c *Client) handleResponse(msg *protocol.Incoming) {
	c.mu.Lock()
	entry, ok := c.pending[msg.ID]
	if !ok {
		c.mu.Unlock()
		c.log.Debug("dropping response for unknown id", "id", msg.ID)
		return
	}
	delete(c.pending, msg.ID)

	valid := msg.Valid()
	if entry.done != nil {
		if valid && msg.HasResult {
			entry.done <- msg.Result
		} else {
			close(entry.done)
		}
		c.mu.Unlock()
		if !valid {
			c.log.Warn("dropping response with invalid result/error combination", "id", msg.ID)
		} else if msg.HasError {
			c.displayError(msg.Error)
		}
		return
	}
	c.mu.Unlock()

	switch {
	case !valid:
		c.log.Warn("dropping response with invalid result/error combination", "id", msg.ID)
	case msg.HasResult:
		if entry.handler != nil {
			c.safeCall(func() { entry.handler(msg.Result) })
		}
	default:
		if entry.errHandler != nil {
			c.safeCall(func() { entry.errHandler(msg.Error) })
		} else {
			c.displayError(msg.Error)
		}
	}
}

// dispatchRequest routes a server-initiated request to its registered
// handler. An unhandled method is logged and skipped; it is not an error.
func (c *Client) dispatchRequest(msg *protocol.Incoming) {
	c.log.Debug("recv request", "method", msg.Method, "id", msg.ID)

	handler, ok := c.handlers.request(msg.Method)
	if !ok {
		c.log.Debug("no handler for request", "method", msg.Method, "id", msg.ID)
		return
	}
	c.safeCall(func() { handler(msg.ID, msg.Params) })
}

// dispatchNotification routes a server notification to its registered
// handler. Unhandled notifications are silently dropped, except log traffic
// which stays out of the debug log to avoid doubling every server message.
func (c *Client) dispatchNotification(msg *protocol.Incoming) {
	if msg.Method != protocol.MethodWindowLogMessage {
		c.log.Debug("recv notification", "method", msg.Method)
	}

	handler, ok := c.handlers.notification(msg.Method)
	if !ok {
		return
	}
	c.safeCall(func() { handler(msg.Params) })
}

// safeCall runs a handler and contains any panic, so a misbehaving handler
// cannot kill the delivery goroutine.
func (c *Client) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handler panicked", "panic", r)
		}
	}()
	fn()
}

// onTransportClosed is the transport's close callback. The transport is
// detached first so no further sends are attempted. During an orderly exit
// the closure is expected and no callbacks fire; otherwise the
// transport-failure handler runs before the crash handler.
func (c *Client) onTransportClosed() {
	c.mu.Lock()
	c.transport = nil
	exiting := c.exiting
	transportFail := c.transportFailHandler
	crash := c.crashHandler
	c.mu.Unlock()

	if exiting {
		c.log.Debug("transport closed after exit")
		return
	}

	c.log.Warn("transport closed unexpectedly")
	if transportFail != nil {
		transportFail()
	}
	if crash != nil {
		crash()
	}
}
