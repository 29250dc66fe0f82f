// Package dispatch routes decoded host envelopes to handlers, pending
// requests and webview panels.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/extension-bridge/backend/internal/hostapi"
	"github.com/extension-bridge/backend/internal/observability"
	"github.com/extension-bridge/backend/internal/protocol"
	"github.com/extension-bridge/backend/internal/registry"
)

// Resolver completes pending correlated requests.
type Resolver interface {
	Resolve(id string, res json.RawMessage) bool
}

// WebviewRouter delivers host events to webview panels.
type WebviewRouter interface {
	HandleEvent(ctx context.Context, id, name string, data json.RawMessage) bool
}

// Dispatcher routes inbound envelopes. Dispatch never waits for a handler.
type Dispatcher struct {
	registry *registry.Registry
	surface  hostapi.Surface
	results  Resolver
	webviews WebviewRouter
	group    *Group
}

// New creates a dispatcher. Handlers run on group.
func New(reg *registry.Registry, surface hostapi.Surface, results Resolver, webviews WebviewRouter, group *Group) *Dispatcher {
	if group == nil {
		group = &Group{}
	}
	return &Dispatcher{
		registry: reg,
		surface:  surface,
		results:  results,
		webviews: webviews,
		group:    group,
	}
}

// DispatchRaw decodes one frame and dispatches it. Undecodable frames are logged and dropped.
func (d *Dispatcher) DispatchRaw(ctx context.Context, raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			log.Warn().Str("envelope", string(raw)).Msg("unrecognized envelope type")
			observability.ObserveInbound(-1, "unknown_type")
		} else {
			log.Warn().Err(err).Str("envelope", string(raw)).Msg("failed to decode envelope")
			observability.ObserveInbound(0, "malformed")
		}
		return
	}
	d.Dispatch(ctx, msg)
}

// Dispatch routes one decoded message. ctx is handed to spawned handlers.
func (d *Dispatcher) Dispatch(ctx context.Context, msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.CommandInvocation:
		d.handleCommand(ctx, m)
	case protocol.EventInvocation:
		d.handleEvent(ctx, m)
	case protocol.EvalResponse:
		d.handleResult(m)
	case protocol.WebviewEvent:
		d.handleWebview(ctx, m)
	default:
		log.Warn().Str("message", fmt.Sprintf("%#v", msg)).Msg("unrecognized message")
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, m protocol.CommandInvocation) {
	handler, ok := d.registry.Command(m.Name)
	if !ok {
		log.Warn().Str("command", m.Name).Msg("invalid command")
		observability.ObserveInbound(int(protocol.TypeCommand), "unknown")
		return
	}
	observability.ObserveInbound(int(protocol.TypeCommand), "dispatched")

	hctx := d.surface.ForCommand(m.Name)
	d.run(ctx, "command", m.Name, func() error { return handler(ctx, hctx) })
}

func (d *Dispatcher) handleEvent(ctx context.Context, m protocol.EventInvocation) {
	handler, ok := d.registry.Event(m.Event)
	if !ok {
		// Unknown events are dropped without a warning, unlike commands.
		log.Trace().Str("event", m.Event).Msg("no handler for event")
		observability.ObserveInbound(int(protocol.TypeEvent), "unknown")
		return
	}
	observability.ObserveInbound(int(protocol.TypeEvent), "dispatched")

	hctx := d.surface.ForEvent(m.Event)
	d.run(ctx, "event", m.Event, func() error { return handler(ctx, hctx, m.Data) })
}

func (d *Dispatcher) handleResult(m protocol.EvalResponse) {
	if !d.results.Resolve(m.ID, m.Res) {
		log.Debug().Str("id", m.ID).Msg("response for unknown request id")
		observability.ObserveInbound(int(protocol.TypeResult), "unknown")
		return
	}
	observability.ObserveInbound(int(protocol.TypeResult), "resolved")
}

func (d *Dispatcher) handleWebview(ctx context.Context, m protocol.WebviewEvent) {
	if !d.webviews.HandleEvent(ctx, m.ID, m.Name, m.Data) {
		observability.ObserveInbound(int(protocol.TypeWebview), "unknown")
		return
	}
	observability.ObserveInbound(int(protocol.TypeWebview), "dispatched")
}

// run executes fn on the group, which recovers panics at the goroutine boundary.
func (d *Dispatcher) run(ctx context.Context, kind, name string, fn func() error) {
	d.group.GoNamed(kind, name, func() {
		started := time.Now()
		outcome := "panic"
		defer func() {
			observability.ObserveHandler(kind, outcome, time.Since(started))
		}()

		err := fn()
		switch {
		case err == nil:
			outcome = "ok"
		case ctx.Err() != nil:
			outcome = "cancelled"
		default:
			outcome = "error"
		}
		if err != nil {
			log.Error().Err(err).Str(kind, name).Msg("handler failed")
		}
	})
}

// Wait blocks until in-flight handlers finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	return d.group.Wait(ctx)
}
