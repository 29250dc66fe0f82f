package model

import "errors"

var (
	// ErrNotConnected is returned when an outbound message is sent while no host peer is attached.
	ErrNotConnected = errors.New("no host connection")

	// ErrConnectionClosed resolves every pending request when the host connection goes away.
	ErrConnectionClosed = errors.New("host connection closed")

	// ErrPeerAlreadyConnected is returned when a second host tries to attach to a bridge.
	ErrPeerAlreadyConnected = errors.New("a host peer is already connected")

	// ErrRequestTimeout is returned when a correlated request outlives its deadline.
	ErrRequestTimeout = errors.New("request timed out waiting for host response")

	// ErrInvalidName is returned when a command or event is registered without a name.
	ErrInvalidName = errors.New("handler name is required")

	// ErrRegistryFrozen is returned when registering a handler after the bridge started serving.
	ErrRegistryFrozen = errors.New("registry is frozen")

	// ErrWebviewNotRunning is returned when a webview is used before creation completed.
	ErrWebviewNotRunning = errors.New("webview is not running")

	// ErrWebviewDisposed is returned when a disposed webview is mutated.
	ErrWebviewDisposed = errors.New("webview is disposed")

	// ErrWebviewNotFound is returned when a webview id is not registered.
	ErrWebviewNotFound = errors.New("webview not found")

	// ErrConnectionNotFound is returned when a connection id has no audit record.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrScopeClosed is returned when a finished progress scope is reported on.
	ErrScopeClosed = errors.New("progress scope is closed")
)
