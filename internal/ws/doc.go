// Package ws owns the bridge's host connection.
//
// The package implements:
//   - Peer: the single active host websocket with its outbound queue
//   - Handler: websocket upgrade plus read and write pumps
//   - Service: listener, startup handshake, and the per-bridge state
//     (correlation table, webview and progress registries, dispatcher)
//
// Key behaviors:
//   - The read pump hands every frame to the dispatcher without waiting on handlers
//   - A second host connecting while one is attached is rejected with 409 Conflict
//   - On disconnect all pending requests fail with model.ErrConnectionClosed,
//     live webviews are disposed locally, and a new host may connect
package ws
