package webview

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/extension-bridge/backend/internal/model"
	"github.com/extension-bridge/backend/internal/observability"
)

// Host event names raised by the panel wiring installed at creation.
const (
	EventMessage         = "message"
	EventChangeViewState = "change_view_state"
	EventDispose         = "dispose"
)

// Executor sends code to the host.
type Executor interface {
	Exec(ctx context.Context, code string) error
	EvalImmediate(ctx context.Context, code string) (json.RawMessage, error)
}

// Observer is notified of panel lifecycle transitions.
type Observer interface {
	WebviewCreated(ctx context.Context, rec model.WebviewRecord)
	WebviewDisposed(ctx context.Context, id string, origin model.DisposeOrigin, at time.Time)
}

// Options configure a Manager.
type Options struct {
	Observer Observer

	// Spawn runs hooks triggered by host events. Defaults to a recovered goroutine.
	Spawn func(fn func())

	// NewID overrides panel id generation. Defaults to uuid v4.
	NewID func() string
}

// Manager is the registry of live panels for one bridge.
type Manager struct {
	exec     Executor
	observer Observer
	spawn    func(fn func())
	newID    func() string

	mu     sync.RWMutex
	panels map[string]*Panel
}

// NewManager creates a panel registry that talks to the host through exec.
func NewManager(exec Executor, opts Options) *Manager {
	m := &Manager{
		exec:     exec,
		observer: opts.Observer,
		spawn:    opts.Spawn,
		newID:    opts.NewID,
		panels:   make(map[string]*Panel),
	}
	if m.spawn == nil {
		m.spawn = goRecovered
	}
	if m.newID == nil {
		m.newID = func() string { return uuid.New().String() }
	}
	return m
}

// Create opens a new panel on the host. The panel is registered before the
// creation request is sent, so host events for it are never dropped. Hooks
// raised by those events run after OnActivate. If the host closes the panel
// before creation completes, Create fails with model.ErrWebviewDisposed.
func (m *Manager) Create(ctx context.Context, title string, column ViewColumn, hooks Hooks) (*Panel, error) {
	if column == 0 {
		column = ColumnOne
	}
	p := &Panel{
		id:      m.newID(),
		manager: m,
		hooks:   hooks,
		title:   title,
		column:  column,
		state:   StateUninitialized,
		view:    ViewState{Column: column},
	}

	m.mu.Lock()
	m.panels[p.id] = p
	m.mu.Unlock()

	if err := m.exec.Exec(ctx, creationCode(p.id, title, column)); err != nil {
		m.remove(p.id)
		p.markDisposed()
		return nil, fmt.Errorf("create webview: %w", err)
	}

	p.mu.Lock()
	if p.state == StateDisposed {
		p.held = nil
		p.mu.Unlock()
		log.Debug().Str("webview", p.id).Msg("webview closed by host during creation")
		return nil, fmt.Errorf("create webview: %w: %s", model.ErrWebviewDisposed, p.id)
	}
	p.state = StateRunning
	if !p.viewReported {
		p.view.Active, p.view.Visible = true, true
	}
	p.mu.Unlock()
	observability.WebviewOpened()

	if m.observer != nil {
		m.observer.WebviewCreated(ctx, model.WebviewRecord{
			ID:        p.id,
			Title:     title,
			Column:    int(column),
			Status:    model.WebviewStatusRunning,
			CreatedAt: time.Now().UTC(),
		})
	}

	log.Debug().Str("webview", p.id).Str("title", title).Msg("webview created")
	if hooks.OnActivate != nil {
		hooks.OnActivate(ctx, p)
	}

	p.mu.Lock()
	p.activated = true
	held := p.held
	p.held = nil
	disposed := p.state == StateDisposed
	p.mu.Unlock()
	if !disposed {
		for _, fn := range held {
			m.spawn(fn)
		}
	}
	return p, nil
}

// Get returns the live panel with id.
func (m *Manager) Get(id string) (*Panel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.panels[id]
	return p, ok
}

// List returns live panels ordered by id.
func (m *Manager) List() []*Panel {
	m.mu.RLock()
	out := make([]*Panel, 0, len(m.panels))
	for _, p := range m.panels {
		out = append(out, p)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Len returns the number of live panels.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.panels)
}

// HandleEvent applies a host event to the panel with id.
// It returns false when no such panel is registered; the event is dropped.
func (m *Manager) HandleEvent(ctx context.Context, id, name string, data json.RawMessage) bool {
	p, ok := m.Get(id)
	if !ok {
		return false
	}

	switch name {
	case EventMessage:
		if hook := p.hooks.OnMessage; hook != nil {
			m.deliver(p, func() { hook(ctx, p, data) })
		} else {
			log.Info().Str("webview", id).RawJSON("data", orNull(data)).Msg("webview received message")
		}
	case EventChangeViewState:
		if len(data) == 0 || string(data) == "null" {
			log.Warn().Str("webview", id).Msg("empty view state payload")
			return true
		}
		var after ViewState
		if err := json.Unmarshal(data, &after); err != nil {
			log.Warn().Err(err).Str("webview", id).Msg("invalid view state payload")
			return true
		}
		before := p.applyViewState(after)
		if hook := p.hooks.OnViewStateChange; hook != nil {
			m.deliver(p, func() { hook(ctx, p, before, after) })
		}
	case EventDispose:
		m.dispose(ctx, p, model.DisposeOriginHost, m.spawn)
	default:
		if hook, ok := p.hooks.Events[name]; ok && hook != nil {
			m.deliver(p, func() { hook(ctx, p, data) })
		} else {
			log.Warn().Str("webview", id).Str("event", name).Msg("webview received unknown event")
		}
	}
	return true
}

// DisposeAll disposes every live panel locally without contacting the host.
// Used when the host connection is lost.
func (m *Manager) DisposeAll(ctx context.Context) int {
	n := 0
	for _, p := range m.List() {
		if m.dispose(ctx, p, model.DisposeOriginDisconnect, m.spawn) {
			n++
		}
	}
	return n
}

// dispose moves p to Disposed, unregisters it and runs OnDispose through run.
// It returns false when p was already disposed.
func (m *Manager) dispose(ctx context.Context, p *Panel, origin model.DisposeOrigin, run func(fn func())) bool {
	wasRunning, changed := p.markDisposed()
	if !changed {
		return false
	}
	m.remove(p.id)
	if !wasRunning {
		// Closed while still being created: it was never announced or activated.
		log.Debug().Str("webview", p.id).Str("origin", string(origin)).Msg("webview disposed before creation completed")
		return true
	}
	observability.WebviewClosed()
	if m.observer != nil {
		m.observer.WebviewDisposed(ctx, p.id, origin, time.Now().UTC())
	}

	log.Debug().Str("webview", p.id).Str("origin", string(origin)).Msg("webview disposed")
	if hook := p.hooks.OnDispose; hook != nil {
		run(func() { hook(ctx, p) })
	}
	return true
}

// deliver runs fn through spawn once the panel's OnActivate has returned.
// Earlier calls are held for Create to release; calls for a disposed panel are dropped.
func (m *Manager) deliver(p *Panel, fn func()) {
	p.mu.Lock()
	if p.state == StateDisposed {
		p.mu.Unlock()
		return
	}
	if !p.activated {
		p.held = append(p.held, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	m.spawn(fn)
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.panels, id)
	m.mu.Unlock()
}

// creationCode builds the host-side panel and wires its events back over the socket.
func creationCode(id, title string, column ViewColumn) string {
	return fmt.Sprintf(`(() => {
  const id = %[1]s;
  const p = vscode.window.createWebviewPanel(id, %[2]s, %[3]d, { enableScripts: true });
  webviews[id] = p;
  p.webview.onDidReceiveMessage((message) => ws.send(JSON.stringify({ type: 4, id, name: %[4]q, data: message })));
  p.onDidChangeViewState((e) => ws.send(JSON.stringify({ type: 4, id, name: %[5]q, data: { active: e.webviewPanel.active, visible: e.webviewPanel.visible, column: e.webviewPanel.viewColumn } })));
  p.onDidDispose(() => { delete webviews[id]; ws.send(JSON.stringify({ type: 4, id, name: %[6]q })); });
})();`, jsString(id), jsString(title), column, EventMessage, EventChangeViewState, EventDispose)
}

func goRecovered(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("webview hook panicked")
			}
		}()
		fn()
	}()
}

func orNull(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("null")
	}
	return data
}
