package rpc

import "sync"

// handlerRegistry maps JSON-RPC method names to the handlers for
// server-initiated requests and notifications. Registration and dispatch
// happen on different goroutines, so access is guarded.
type handlerRegistry struct {
	mu            sync.RWMutex
	requests      map[string]RequestHandler
	notifications map[string]NotificationHandler
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{
		requests:      make(map[string]RequestHandler),
		notifications: make(map[string]NotificationHandler),
	}
}

func (r *handlerRegistry) setRequest(method string, handler RequestHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handler == nil {
		delete(r.requests, method)
		return
	}
	r.requests[method] = handler
}

func (r *handlerRegistry) setNotification(method string, handler NotificationHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handler == nil {
		delete(r.notifications, method)
		return
	}
	r.notifications[method] = handler
}

func (r *handlerRegistry) request(method string) (RequestHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.requests[method]
	return h, ok
}

func (r *handlerRegistry) notification(method string) (NotificationHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.notifications[method]
	return h, ok
}
