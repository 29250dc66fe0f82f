package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/extension-bridge/backend/internal/buffer"
	"github.com/extension-bridge/backend/internal/model"
	"github.com/extension-bridge/backend/internal/observability"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer. Webview HTML and eval results
	// can be large, unlike terminal keystrokes.
	defaultMaxMessageSize = 4 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The listener is bound to localhost and the host is a local process.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleConnection upgrades r and runs the host connection until it closes.
// A second host is refused with 409 Conflict while one is attached.
func (s *Service) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	if !s.reserve() {
		observability.ObserveConnection("rejected")
		log.Warn().Str("remote", r.RemoteAddr).Msg("rejecting host connection: a host is already attached")
		http.Error(w, "a host is already connected", http.StatusConflict)
		return model.ErrPeerAlreadyConnected
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.release()
		observability.ObserveConnection("upgrade_failed")
		return err
	}

	peer := NewPeer(conn, r.RemoteAddr, s.opts.QueueSize)
	s.attach(peer)

	go s.writePump(peer)
	go s.readPump(peer)

	return nil
}

// readPump feeds host frames to the dispatcher until the connection drops.
func (s *Service) readPump(peer *Peer) {
	defer func() {
		s.detach(peer)
		peer.conn.Close()
	}()

	conn := peer.conn
	conn.SetReadLimit(s.opts.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("peer", peer.ID()).Msg("websocket read error")
			}
			break
		}
		// Some hosts answer a ping with any frame; treat traffic as liveness.
		conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))

		s.record(buffer.DirectionIn, message)
		s.dispatcher.DispatchRaw(peer.Context(), message)
	}
}

// writePump drains the peer's queue onto the socket, one envelope per frame.
func (s *Service) writePump(peer *Peer) {
	ticker := time.NewTicker(s.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		peer.conn.Close()
	}()

	conn := peer.conn
	for {
		select {
		case message := <-peer.send:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("peer", peer.ID()).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-peer.Done():
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// reserve claims the single host slot before the upgrade so two racing
// upgrades cannot both attach.
func (s *Service) reserve() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer != nil || s.attaching {
		return false
	}
	s.attaching = true
	return true
}

func (s *Service) release() {
	s.mu.Lock()
	s.attaching = false
	s.mu.Unlock()
}

func (s *Service) attach(peer *Peer) {
	s.mu.Lock()
	s.peer = peer
	s.attaching = false
	s.mu.Unlock()

	observability.ObserveConnection("accepted")
	if s.transcript != nil {
		if err := s.transcript.Begin(peer.RemoteAddr()); err != nil {
			log.Warn().Err(err).Msg("transcript header write failed")
		}
	}
	if s.opts.Observer != nil {
		s.opts.Observer.ConnectionOpened(peer.Context(), model.ConnectionRecord{
			ID:          peer.ID(),
			RemoteAddr:  peer.RemoteAddr(),
			ConnectedAt: time.Now(),
		})
	}
	log.Info().Str("peer", peer.ID()).Str("remote", peer.RemoteAddr()).Msg("host connected")
}

// detach clears the slot first so no new request can reach the dead peer,
// then fails everything still waiting on it.
func (s *Service) detach(peer *Peer) {
	s.mu.Lock()
	if s.peer == peer {
		s.peer = nil
	}
	s.mu.Unlock()

	peer.Close()

	ctx := context.WithoutCancel(peer.Context())
	failed := s.table.FailAll(model.ErrConnectionClosed)
	disposed := s.webviews.DisposeAll(ctx)
	abandoned := s.progress.Abandon()

	if s.opts.Observer != nil {
		s.opts.Observer.ConnectionClosed(ctx, peer.ID(), time.Now(), failed)
	}
	close(peer.detached)
	log.Info().
		Str("peer", peer.ID()).
		Int("failed_requests", failed).
		Int("disposed_webviews", disposed).
		Int("abandoned_progress", abandoned).
		Msg("host disconnected")
}

func (s *Service) record(dir buffer.Direction, data []byte) {
	s.trace.Record(dir, data)
	if s.transcript == nil {
		return
	}
	var err error
	if dir == buffer.DirectionIn {
		err = s.transcript.Inbound(data)
	} else {
		err = s.transcript.Outbound(data)
	}
	if err != nil {
		log.Debug().Err(err).Msg("transcript write failed")
	}
}
