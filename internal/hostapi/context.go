// Package hostapi exposes host editor operations to command and event handlers
// on top of the bridge's outbound RPC client.
package hostapi

import (
	"context"
	"encoding/json"

	"github.com/extension-bridge/backend/internal/progress"
	"github.com/extension-bridge/backend/internal/webview"
)

// Caller is the outbound RPC surface handlers talk to the host through.
type Caller interface {
	Exec(ctx context.Context, code string) error
	Eval(ctx context.Context, code string) (json.RawMessage, error)
	EvalImmediate(ctx context.Context, code string) (json.RawMessage, error)
}

// Context is handed to every dispatched handler.
type Context struct {
	// Command is the name of the command that fired, empty for events.
	Command string
	// Event is the name of the event that fired, empty for commands.
	Event string

	RPC       Caller
	Window    *Window
	Env       *Env
	Workspace *Workspace
}

// Surface bundles the long-lived handles a Context is built from.
type Surface struct {
	Caller   Caller
	Webviews *webview.Manager
	Progress *progress.Manager
}

// ForCommand builds a fresh context for one command invocation.
func (s Surface) ForCommand(name string) *Context {
	c := s.build()
	c.Command = name
	return c
}

// ForEvent builds a fresh context for one event invocation.
func (s Surface) ForEvent(name string) *Context {
	c := s.build()
	c.Event = name
	return c
}

func (s Surface) build() *Context {
	return &Context{
		RPC:       s.Caller,
		Window:    &Window{caller: s.Caller, webviews: s.Webviews, progress: s.Progress},
		Env:       &Env{caller: s.Caller, Clipboard: &Clipboard{caller: s.Caller}},
		Workspace: &Workspace{caller: s.Caller},
	}
}

// jsValue renders v as a JavaScript literal.
func jsValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "undefined"
	}
	return string(b)
}
