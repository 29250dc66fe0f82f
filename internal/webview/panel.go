// Package webview tracks host-side webview panels and their lifecycle.
//
// A Panel moves Uninitialized -> Running -> Disposed. Disposed is terminal:
// the panel is removed from its Manager, its OnDispose hook runs once, and
// every later mutation fails with model.ErrWebviewDisposed.
package webview

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/extension-bridge/backend/internal/model"
)

// State is the lifecycle state of a panel.
type State int

const (
	StateUninitialized State = iota
	StateRunning
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ViewColumn is the editor column a panel is shown in.
type ViewColumn int

const (
	ColumnBeside ViewColumn = -2
	ColumnActive ViewColumn = -1
	ColumnOne    ViewColumn = 1
	ColumnTwo    ViewColumn = 2
	ColumnThree  ViewColumn = 3
)

// ViewState is the host-reported visibility of a panel.
type ViewState struct {
	Active  bool       `json:"active"`
	Visible bool       `json:"visible"`
	Column  ViewColumn `json:"column"`
}

// Hooks receive panel lifecycle and host events. Every hook is optional.
type Hooks struct {
	OnActivate        func(ctx context.Context, p *Panel)
	OnMessage         func(ctx context.Context, p *Panel, data json.RawMessage)
	OnViewStateChange func(ctx context.Context, p *Panel, before, after ViewState)
	OnDispose         func(ctx context.Context, p *Panel)

	// Events handles any other event name raised by host-side code.
	Events map[string]func(ctx context.Context, p *Panel, data json.RawMessage)
}

// Panel is the local half of one host webview panel.
type Panel struct {
	id      string
	manager *Manager
	hooks   Hooks

	mu     sync.RWMutex
	title  string
	column ViewColumn
	html   string
	state  State
	view   ViewState

	// viewReported is set once the host sends a view state; creation then
	// keeps the reported state instead of assuming the panel is visible.
	viewReported bool
	// Hook calls raised before OnActivate returns are held until it does.
	activated bool
	held      []func()
}

// ID returns the panel's unique id.
func (p *Panel) ID() string {
	return p.id
}

// Title returns the last title set on the panel.
func (p *Panel) Title() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.title
}

// Column returns the column the panel was created in.
func (p *Panel) Column() ViewColumn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.column
}

// HTML returns the last content set on the panel.
func (p *Panel) HTML() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.html
}

// State returns the lifecycle state.
func (p *Panel) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// ViewState returns the last view state reported by the host.
func (p *Panel) ViewState() ViewState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.view
}

// SetHTML replaces the panel content.
func (p *Panel) SetHTML(ctx context.Context, html string) error {
	if err := p.mutate(func() { p.html = html }); err != nil {
		return err
	}
	return p.manager.exec.Exec(ctx, fmt.Sprintf("webviews[%s].webview.html = %s;", jsString(p.id), jsString(html)))
}

// UpdateTitle changes the panel title.
func (p *Panel) UpdateTitle(ctx context.Context, title string) error {
	if err := p.mutate(func() { p.title = title }); err != nil {
		return err
	}
	return p.manager.exec.Exec(ctx, fmt.Sprintf("webviews[%s].title = %s;", jsString(p.id), jsString(title)))
}

// PostMessage delivers data to the panel's scripts.
func (p *Panel) PostMessage(ctx context.Context, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode webview message: %w", err)
	}
	if err := p.mutate(nil); err != nil {
		return err
	}
	return p.manager.exec.Exec(ctx, fmt.Sprintf("webviews[%s].webview.postMessage(%s);", jsString(p.id), payload))
}

// Reveal shows the panel in column, or in its creation column when column is zero.
func (p *Panel) Reveal(ctx context.Context, column ViewColumn) error {
	if err := p.mutate(func() {
		if column == 0 {
			column = p.column
		}
	}); err != nil {
		return err
	}
	return p.manager.exec.Exec(ctx, fmt.Sprintf("webviews[%s].reveal(%d);", jsString(p.id), column))
}

// IsVisible asks the host whether the panel is currently visible.
func (p *Panel) IsVisible(ctx context.Context) (bool, error) {
	if err := p.mutate(nil); err != nil {
		return false, err
	}
	raw, err := p.manager.exec.EvalImmediate(ctx, fmt.Sprintf("webviews[%s].visible", jsString(p.id)))
	if err != nil {
		return false, err
	}
	var visible bool
	if err := json.Unmarshal(raw, &visible); err != nil {
		return false, fmt.Errorf("decode visibility: %w", err)
	}
	return visible, nil
}

// Dispose closes the host panel. Disposing an already disposed panel is a no-op.
func (p *Panel) Dispose(ctx context.Context) error {
	p.mu.RLock()
	state := p.state
	p.mu.RUnlock()

	switch state {
	case StateDisposed:
		return nil
	case StateUninitialized:
		return model.ErrWebviewNotRunning
	}

	if !p.manager.dispose(ctx, p, model.DisposeOriginLocal, func(fn func()) { fn() }) {
		return nil
	}
	return p.manager.exec.Exec(ctx, fmt.Sprintf("webviews[%s].dispose();", jsString(p.id)))
}

// mutate applies fn under the panel lock when the panel is running.
func (p *Panel) mutate(fn func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateDisposed:
		return fmt.Errorf("%w: %s", model.ErrWebviewDisposed, p.id)
	case StateUninitialized:
		return fmt.Errorf("%w: %s", model.ErrWebviewNotRunning, p.id)
	}
	if fn != nil {
		fn()
	}
	return nil
}

// applyViewState swaps in the host's new view state and returns the previous one.
func (p *Panel) applyViewState(after ViewState) ViewState {
	p.mu.Lock()
	defer p.mu.Unlock()
	before := p.view
	p.view = after
	p.viewReported = true
	return before
}

// markDisposed moves the panel to Disposed and reports whether the previous
// state was Running. The second return is false when it was already disposed.
func (p *Panel) markDisposed() (wasRunning, changed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDisposed {
		return false, false
	}
	wasRunning = p.state == StateRunning
	p.state = StateDisposed
	return wasRunning, true
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
