// Package bridge is the surface extension authors build on: register
// commands and events, then Run to serve the host editor.
package bridge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/extension-bridge/backend/api/handlers"
	"github.com/extension-bridge/backend/internal/config"
	"github.com/extension-bridge/backend/internal/db"
	"github.com/extension-bridge/backend/internal/hostapi"
	"github.com/extension-bridge/backend/internal/progress"
	"github.com/extension-bridge/backend/internal/registry"
	"github.com/extension-bridge/backend/internal/repository"
	"github.com/extension-bridge/backend/internal/rpc"
	"github.com/extension-bridge/backend/internal/transcript"
	"github.com/extension-bridge/backend/internal/webview"
	"github.com/extension-bridge/backend/internal/ws"
)

// Re-export types from internal packages for external use
type (
	Config         = config.Config
	Context        = hostapi.Context
	CommandHandler = registry.CommandHandler
	EventHandler   = registry.EventHandler

	Panel      = webview.Panel
	Hooks      = webview.Hooks
	ViewColumn = webview.ViewColumn
	ViewState  = webview.ViewState

	Scope            = progress.Scope
	Location         = progress.Location
	MessageSeverity  = hostapi.MessageSeverity
	InputBoxOptions  = hostapi.InputBoxOptions
	QuickPickItem    = hostapi.QuickPickItem
	QuickPickOptions = hostapi.QuickPickOptions
)

const (
	ColumnBeside = webview.ColumnBeside
	ColumnActive = webview.ColumnActive
	ColumnOne    = webview.ColumnOne
	ColumnTwo    = webview.ColumnTwo
	ColumnThree  = webview.ColumnThree

	LocationSourceControl = progress.LocationSourceControl
	LocationWindow        = progress.LocationWindow
	LocationNotification  = progress.LocationNotification
)

// ActivateEvent is sent by the host right after it connects.
const ActivateEvent = "activate"

// DefaultConfig returns the default bridge configuration.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig resolves configuration from an optional TOML file and BRIDGE_* variables.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// DecodeResult unmarshals a result returned by Context.RPC.Eval.
func DecodeResult[T any](raw []byte, err error) (T, error) {
	return rpc.DecodeResult[T](raw, err)
}

// Extension collects handlers before the bridge starts.
type Extension struct {
	registry  *registry.Registry
	handshake io.Writer
}

// Option configures an Extension.
type Option func(*Extension)

// WithHandshake redirects the startup line, which otherwise goes to stdout.
func WithHandshake(w io.Writer) Option {
	return func(e *Extension) { e.handshake = w }
}

// New creates an empty Extension.
func New(opts ...Option) *Extension {
	e := &Extension{registry: registry.New()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Command registers h under name. A later registration with the same name wins.
func (e *Extension) Command(name string, h CommandHandler) error {
	return e.registry.RegisterCommand(name, h)
}

// Event registers h for the host event name, matched case-insensitively.
func (e *Extension) Event(name string, h EventHandler) error {
	return e.registry.RegisterEvent(name, h)
}

// Server is a started bridge.
type Server struct {
	svc     *ws.Service
	uri     string
	done    chan error
	closers []io.Closer
}

// Start binds the listener, announces it, and serves in the background.
func (e *Extension) Start(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	srv := &Server{done: make(chan error, 1)}

	var rec *transcript.Recorder
	if cfg.TranscriptPath != "" {
		var err error
		if rec, err = transcript.Open(cfg.TranscriptPath); err != nil {
			return nil, err
		}
		srv.closers = append(srv.closers, rec)
	}

	var observer ws.Observer
	var history handlers.WebviewHistory
	if cfg.DBPath != "" {
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			srv.close()
			return nil, err
		}
		srv.closers = append(srv.closers, database)
		repo := repository.NewAuditRepository(database)
		observer, history = repo, repo
	}

	srv.svc = ws.NewService(e.registry, ws.Options{
		Host:           cfg.Host,
		Port:           cfg.Port,
		RequestTimeout: cfg.RequestTimeout,
		WriteWait:      cfg.WriteWait,
		PongWait:       cfg.PongWait,
		MaxMessageSize: cfg.MaxMessageSize,
		TraceCapacity:  cfg.TraceCapacity,
		Handshake:      e.handshake,
		Transcript:     rec,
		Observer:       observer,
	})

	uri, err := srv.svc.Listen()
	if err != nil {
		srv.close()
		return nil, err
	}
	srv.uri = uri

	router := handlers.NewRouter(srv.svc, srv.svc, history)
	go func() {
		srv.done <- srv.svc.Serve(router)
	}()

	log.Info().
		Strs("commands", e.registry.Commands()).
		Strs("events", e.registry.Events()).
		Msg("bridge started")
	return srv, nil
}

// Run starts the bridge and blocks until ctx is cancelled or serving fails.
func (e *Extension) Run(ctx context.Context, cfg Config) error {
	srv, err := e.Start(cfg)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-srv.done:
		srv.close()
		return err
	}
}

// URI is the websocket address announced in the handshake.
func (s *Server) URI() string {
	return s.uri
}

// Connected reports whether a host is attached.
func (s *Server) Connected() bool {
	return s.svc.Connected()
}

// Shutdown closes the host connection and waits for in-flight handlers.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.svc.Shutdown(ctx)
	if serveErr := <-s.done; serveErr != nil && err == nil {
		err = serveErr
	}
	if cerr := s.close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (s *Server) close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close bridge resources: %w", errors.Join(errs...))
	}
	return nil
}
