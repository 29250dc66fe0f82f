// Package registry maps command and event names to their handlers.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/extension-bridge/backend/internal/hostapi"
	"github.com/extension-bridge/backend/internal/model"
)

// CommandHandler runs when the host invokes a command.
type CommandHandler func(ctx context.Context, c *hostapi.Context) error

// EventHandler runs when the host raises an event. data is nil when the event carried no payload.
type EventHandler func(ctx context.Context, c *hostapi.Context, data json.RawMessage) error

// Registry holds the handlers of one bridge. Registration is only possible
// before Freeze; re-registering a name replaces the earlier handler.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]CommandHandler
	events   map[string]EventHandler
	frozen   bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		commands: make(map[string]CommandHandler),
		events:   make(map[string]EventHandler),
	}
}

// RegisterCommand binds name to h. Names are opaque and matched exactly.
func (r *Registry) RegisterCommand(name string, h CommandHandler) error {
	if strings.TrimSpace(name) == "" || h == nil {
		return model.ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("%w: command %q", model.ErrRegistryFrozen, name)
	}
	if _, exists := r.commands[name]; exists {
		log.Warn().Str("command", name).Msg("command re-registered, replacing previous handler")
	}
	r.commands[name] = h
	return nil
}

// RegisterEvent binds name to h. Event names are matched case-insensitively.
func (r *Registry) RegisterEvent(name string, h EventHandler) error {
	key := eventKey(name)
	if key == "" || h == nil {
		return model.ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("%w: event %q", model.ErrRegistryFrozen, name)
	}
	if _, exists := r.events[key]; exists {
		log.Warn().Str("event", name).Msg("event re-registered, replacing previous handler")
	}
	r.events[key] = h
	return nil
}

// Freeze rejects all later registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Command looks up a command handler.
func (r *Registry) Command(name string) (CommandHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.commands[name]
	return h, ok
}

// Event looks up an event handler.
func (r *Registry) Event(name string) (EventHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.events[eventKey(name)]
	return h, ok
}

// Commands returns the registered command names in sorted order.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.commands))
	for name := range r.commands {
		out = append(out, name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Events returns the registered (lower-cased) event names in sorted order.
func (r *Registry) Events() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.events))
	for name := range r.events {
		out = append(out, name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func eventKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
