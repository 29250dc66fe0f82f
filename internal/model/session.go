package model

import (
	"time"
)

// WebviewStatus represents the lifecycle state of a webview panel as recorded in the audit store.
type WebviewStatus string

const (
	WebviewStatusRunning  WebviewStatus = "running"
	WebviewStatusDisposed WebviewStatus = "disposed"
)

// DisposeOrigin records which side ended a webview.
type DisposeOrigin string

const (
	DisposeOriginLocal      DisposeOrigin = "local"
	DisposeOriginHost       DisposeOrigin = "host"
	DisposeOriginDisconnect DisposeOrigin = "disconnect"
)

// WebviewRecord is the persisted lifecycle of one webview panel.
type WebviewRecord struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Column        int           `json:"column"`
	Status        WebviewStatus `json:"status"`
	DisposeOrigin DisposeOrigin `json:"disposeOrigin,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	DisposedAt    *time.Time    `json:"disposedAt,omitempty"`
}

// Lifetime returns how long the panel was (or has been) open.
func (r *WebviewRecord) Lifetime() time.Duration {
	if r.DisposedAt != nil {
		return r.DisposedAt.Sub(r.CreatedAt)
	}
	return time.Since(r.CreatedAt)
}

// ConnectionRecord is the persisted lifetime of one host connection.
type ConnectionRecord struct {
	ID             string     `json:"id"`
	RemoteAddr     string     `json:"remoteAddr"`
	ConnectedAt    time.Time  `json:"connectedAt"`
	DisconnectedAt *time.Time `json:"disconnectedAt,omitempty"`
	FailedPending  int        `json:"failedPending"`
}
