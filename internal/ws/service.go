package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/extension-bridge/backend/internal/buffer"
	"github.com/extension-bridge/backend/internal/dispatch"
	"github.com/extension-bridge/backend/internal/hostapi"
	"github.com/extension-bridge/backend/internal/model"
	"github.com/extension-bridge/backend/internal/observability"
	"github.com/extension-bridge/backend/internal/progress"
	"github.com/extension-bridge/backend/internal/protocol"
	"github.com/extension-bridge/backend/internal/registry"
	"github.com/extension-bridge/backend/internal/rpc"
	"github.com/extension-bridge/backend/internal/transcript"
	"github.com/extension-bridge/backend/internal/webview"
)

// Observer is told about host connections and webview lifecycles. The
// audit repository implements it.
type Observer interface {
	webview.Observer
	ConnectionOpened(ctx context.Context, rec model.ConnectionRecord)
	ConnectionClosed(ctx context.Context, id string, at time.Time, failedPending int)
}

// Options tunes the connection. Zero values fall back to defaults.
type Options struct {
	// Host and Port the listener binds. Port 0 picks a free port.
	Host string
	Port int

	RequestTimeout time.Duration
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	QueueSize      int
	TraceCapacity  int

	// Handshake receives the startup line. Defaults to os.Stdout.
	Handshake  io.Writer
	Transcript *transcript.Recorder
	Observer   Observer
}

func (o Options) withDefaults() Options {
	if o.Host == "" {
		o.Host = "localhost"
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.TraceCapacity <= 0 {
		o.TraceCapacity = 200
	}
	if o.Handshake == nil {
		o.Handshake = os.Stdout
	}
	return o
}

// Send pings to peer with this period. Must be less than PongWait.
func (o Options) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// Service is one bridge instance: the listener, the attached host, and
// everything that lives for as long as the process does.
type Service struct {
	opts       Options
	registry   *registry.Registry
	table      *rpc.Table
	client     *rpc.Client
	webviews   *webview.Manager
	progress   *progress.Manager
	group      *dispatch.Group
	dispatcher *dispatch.Dispatcher
	trace      *buffer.RingBuffer
	transcript *transcript.Recorder

	mu        sync.Mutex
	peer      *Peer
	attaching bool
	server    *http.Server
	closed    bool

	listener net.Listener
}

// NewService wires a bridge around reg. Handlers registered on reg after
// Serve starts are rejected.
func NewService(reg *registry.Registry, opts Options) *Service {
	opts = opts.withDefaults()

	s := &Service{
		opts:       opts,
		registry:   reg,
		table:      rpc.NewTable(),
		group:      &dispatch.Group{},
		trace:      buffer.NewRingBuffer(opts.TraceCapacity),
		transcript: opts.Transcript,
	}
	s.client = rpc.NewClient(s, s.table, rpc.Options{Timeout: opts.RequestTimeout})

	var observer webview.Observer
	if opts.Observer != nil {
		observer = opts.Observer
	}
	s.webviews = webview.NewManager(s.client, webview.Options{
		Observer: observer,
		Spawn:    s.group.Go,
	})
	s.progress = progress.NewManager(s.client)
	s.dispatcher = dispatch.New(reg, s.Surface(), s.table, s.webviews, s.group)
	return s
}

// Send encodes env and queues it for the attached host.
func (s *Service) Send(ctx context.Context, env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	s.mu.Lock()
	peer := s.peer
	s.mu.Unlock()
	if peer == nil {
		return model.ErrNotConnected
	}

	if err := peer.Send(ctx, data); err != nil {
		return err
	}
	observability.ObserveOutbound(int(env.Type))
	s.record(buffer.DirectionOut, data)
	return nil
}

// Listen binds the listener and writes the handshake line the host waits for.
func (s *Service) Listen() (string, error) {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln

	port := ln.Addr().(*net.TCPAddr).Port
	uri := fmt.Sprintf("ws://localhost:%d", port)
	if _, err := fmt.Fprintf(s.opts.Handshake, "Listening on %s\n", uri); err != nil {
		ln.Close()
		return "", fmt.Errorf("write handshake: %w", err)
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("bridge listening")
	return uri, nil
}

// Serve freezes the registry and serves h on the bound listener until
// Shutdown. Listen must have succeeded.
func (s *Service) Serve(h http.Handler) error {
	if s.listener == nil {
		return errors.New("ws: Serve called before Listen")
	}
	s.registry.Freeze()

	server := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.listener.Close()
		return nil
	}
	s.server = server
	s.mu.Unlock()

	if err := server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting hosts, closes the attached one, and waits for
// in-flight handlers until ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	server, peer := s.server, s.peer
	s.mu.Unlock()

	var err error
	if server != nil {
		err = server.Shutdown(ctx)
	} else if s.listener != nil {
		s.listener.Close()
	}
	if peer != nil {
		peer.Close()
		select {
		case <-peer.detached:
		case <-ctx.Done():
			peer.conn.Close()
		}
	}

	if werr := s.dispatcher.Wait(ctx); werr != nil && err == nil {
		err = werr
	}
	return err
}

// Surface returns the handles handlers are given.
func (s *Service) Surface() hostapi.Surface {
	return hostapi.Surface{Caller: s.client, Webviews: s.webviews, Progress: s.progress}
}

// Client returns the outbound RPC client.
func (s *Service) Client() *rpc.Client {
	return s.client
}

// Webviews returns the webview registry.
func (s *Service) Webviews() *webview.Manager {
	return s.webviews
}

// Progress returns the progress scope registry.
func (s *Service) Progress() *progress.Manager {
	return s.progress
}

// PendingIDs lists requests still waiting on the host.
func (s *Service) PendingIDs() []string {
	return s.table.IDs()
}

// Trace returns the recent wire frames, oldest first.
func (s *Service) Trace() []buffer.Frame {
	return s.trace.Snapshot()
}

// Connected reports whether a host is attached.
func (s *Service) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer != nil
}

// Registry returns the handler registry.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}
