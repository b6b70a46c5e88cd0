package rpc

import (
	"encoding/json"
	"time"
)

// registerWaitLocked installs a pending entry whose response is delivered
// through a one-shot channel instead of handlers. The caller must hold c.mu.
// The channel is buffered so the delivery goroutine never blocks on a waiter
// that has already timed out.
func (c *Client) registerWaitLocked(id int64) chan json.RawMessage {
	done := make(chan json.RawMessage, 1)
	c.pending[id] = pendingEntry{done: done}
	return done
}

// awaitResult blocks until the response for id is signaled on done or the
// timeout elapses. On timeout it deregisters the id itself so the entry does
// not linger; a response that raced the timeout and already signaled the
// channel is still consumed and returned.
func (c *Client) awaitResult(method string, id int64, done chan json.RawMessage, timeout time.Duration) json.RawMessage {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-done:
		// A closed channel yields nil, which covers error responses and
		// protocol violations as well as a successful null result.
		return result
	case <-timer.C:
	}

	c.mu.Lock()
	if _, ok := c.pending[id]; ok {
		// The response never arrived. Remove the entry so a late response
		// is dropped as unknown rather than signaling a gone waiter.
		delete(c.pending, id)
		c.mu.Unlock()
		c.log.Warn("request timed out", "method", method, "id", id, "timeout", timeout)
		return nil
	}
	c.mu.Unlock()

	// The delivery goroutine consumed the entry between the timeout firing
	// and the lock being taken, so the result is already buffered.
	select {
	case result := <-done:
		return result
	default:
		return nil
	}
}
