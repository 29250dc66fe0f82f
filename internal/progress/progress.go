// Package progress coordinates host progress indicators.
//
// Each scope is keyed by a generated id rather than its title, so two scopes
// with the same title never collide. Opening a scope starts a host-side task
// whose promise stays pending until End sends the explicit completion message.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/extension-bridge/backend/internal/model"
)

// Location is where the host renders the indicator.
type Location int

const (
	LocationSourceControl Location = 1
	LocationWindow        Location = 10
	LocationNotification  Location = 15
)

// Executor sends fire-and-forget code to the host.
type Executor interface {
	Exec(ctx context.Context, code string) error
}

// Manager tracks open scopes for one bridge.
type Manager struct {
	exec  Executor
	newID func() string

	mu     sync.Mutex
	scopes map[string]*Scope
}

// NewManager creates a scope registry that talks to the host through exec.
func NewManager(exec Executor) *Manager {
	return &Manager{
		exec:   exec,
		newID:  func() string { return uuid.New().String() },
		scopes: make(map[string]*Scope),
	}
}

// Scope is one open progress indicator.
type Scope struct {
	id       string
	title    string
	location Location
	manager  *Manager

	mu        sync.Mutex
	completed bool
}

// ID returns the scope's unique id.
func (s *Scope) ID() string { return s.id }

// Title returns the title shown by the host.
func (s *Scope) Title() string { return s.title }

// Completed reports whether End has run.
func (s *Scope) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Begin opens a scope on the host.
func (m *Manager) Begin(ctx context.Context, title string, location Location) (*Scope, error) {
	if location == 0 {
		location = LocationWindow
	}
	s := &Scope{
		id:       m.newID(),
		title:    title,
		location: location,
		manager:  m,
	}

	m.mu.Lock()
	m.scopes[s.id] = s
	m.mu.Unlock()

	if err := m.exec.Exec(ctx, beginCode(s)); err != nil {
		m.remove(s.id)
		s.markCompleted()
		return nil, fmt.Errorf("begin progress: %w", err)
	}
	return s, nil
}

// Report advances the indicator by increment percent and shows message.
func (s *Scope) Report(ctx context.Context, increment float64, message string) error {
	if s.Completed() {
		return fmt.Errorf("%w: %s", model.ErrScopeClosed, s.id)
	}
	code := fmt.Sprintf("progressRecords[%s]?.progress?.report({ increment: %g, message: %s });",
		jsString(s.id), increment, jsString(message))
	return s.manager.exec.Exec(ctx, code)
}

// End completes the scope on the host. Calling End again is a no-op.
func (s *Scope) End(ctx context.Context) error {
	if !s.markCompleted() {
		return nil
	}
	s.manager.remove(s.id)
	// The host task may not have started yet; leave a done marker for it.
	code := fmt.Sprintf("(() => { const r = progressRecords[%[1]s]; if (r && r.resolve) { delete progressRecords[%[1]s]; r.resolve(); } else { progressRecords[%[1]s] = { done: true }; } })();", jsString(s.id))
	return s.manager.exec.Exec(ctx, code)
}

// With runs fn inside a scope. End always runs, even when fn fails.
func (m *Manager) With(ctx context.Context, title string, location Location, fn func(s *Scope) error) error {
	s, err := m.Begin(ctx, title, location)
	if err != nil {
		return err
	}
	defer func() {
		if endErr := s.End(context.WithoutCancel(ctx)); endErr != nil {
			log.Debug().Err(endErr).Str("scope", s.id).Msg("progress end failed")
		}
	}()
	return fn(s)
}

// Open returns the open scopes ordered by id.
func (m *Manager) Open() []*Scope {
	m.mu.Lock()
	out := make([]*Scope, 0, len(m.scopes))
	for _, s := range m.scopes {
		out = append(out, s)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Abandon marks every open scope completed without contacting the host.
// Used when the host connection is lost; the host-side promises die with it.
func (m *Manager) Abandon() int {
	m.mu.Lock()
	scopes := m.scopes
	m.scopes = make(map[string]*Scope)
	m.mu.Unlock()

	for _, s := range scopes {
		s.markCompleted()
	}
	return len(scopes)
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.scopes, id)
	m.mu.Unlock()
}

// markCompleted reports whether this call completed the scope.
func (s *Scope) markCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return false
	}
	s.completed = true
	return true
}

func beginCode(s *Scope) string {
	return fmt.Sprintf(`(() => {
  const id = %[1]s;
  vscode.window.withProgress({ location: %[2]d, title: %[3]s }, (progress) =>
    new Promise((resolve) => {
      if (progressRecords[id]?.done) { delete progressRecords[id]; resolve(); return; }
      progressRecords[id] = { progress, resolve };
    }));
})();`, jsString(s.id), s.location, jsString(s.title))
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
