package ws

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/extension-bridge/backend/internal/model"
)

// Peer is the attached host connection.
type Peer struct {
	id         string
	conn       *websocket.Conn
	remoteAddr string
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once

	// detached is closed once the service has failed everything bound to this peer.
	detached chan struct{}

	// ctx is handed to handlers dispatched on this connection and is
	// cancelled when the connection goes away.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPeer wraps conn. conn may be nil in tests that only exercise the queue.
func NewPeer(conn *websocket.Conn, remoteAddr string, queueSize int) *Peer {
	if queueSize <= 0 {
		queueSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Peer{
		id:         uuid.New().String(),
		conn:       conn,
		remoteAddr: remoteAddr,
		send:       make(chan []byte, queueSize),
		done:       make(chan struct{}),
		detached:   make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// ID returns the connection id.
func (p *Peer) ID() string {
	return p.id
}

// RemoteAddr returns the host's address.
func (p *Peer) RemoteAddr() string {
	return p.remoteAddr
}

// Context is cancelled when the peer closes.
func (p *Peer) Context() context.Context {
	return p.ctx
}

// Send queues data for the write pump. It blocks while the queue is full
// until ctx is done or the peer closes.
func (p *Peer) Send(ctx context.Context, data []byte) error {
	select {
	case <-p.done:
		return model.ErrConnectionClosed
	default:
	}

	select {
	case p.send <- data:
		return nil
	case <-p.done:
		return model.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the peer closed and cancels its context.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.cancel()
	})
}

// IsClosed reports whether Close has run.
func (p *Peer) IsClosed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Done is closed when the peer closes.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}
