// Package rpc implements the JSON-RPC client that talks to a language
// server over an abstracted transport.
//
// # Architecture
//
// The package is organized around these core components:
//
//   - Client: request-id allocation, response correlation, and the
//     crash/transport-failure callbacks
//   - handlerRegistry: method-name dispatch for server-initiated requests
//     and notifications
//   - sync waits: one-shot signaling that lets ExecuteRequest block its
//     caller until the matching response arrives or a timeout elapses
//   - Attach helpers: wiring a spawned server process to a stdio or TCP
//     transport
//
// # Concurrency
//
// Any number of caller goroutines may send concurrently. Exactly one
// delivery goroutine, owned by the transport, feeds the inbound path. The
// id counter, the pending table, and the sync waiters share a single mutex,
// so a result inserted by the delivery goroutine is never missed by a
// waiter. Request ids are unique per client, so at most one caller ever
// waits on a given id.
//
// # Failure containment
//
// Decode failures, unknown response ids, protocol violations, and panics
// inside registered handlers are logged and contained at the point of
// detection; none of them can stop the delivery goroutine or corrupt
// pending state. Only explicit JSON-RPC error responses and transport-level
// crashes surface to the owning layer, through the error-display,
// transport-failure, and crash callbacks.
package rpc
