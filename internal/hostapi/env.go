package hostapi

import (
	"context"
	"fmt"

	"github.com/extension-bridge/backend/internal/rpc"
)

// Env wraps vscode.env.
type Env struct {
	caller    Caller
	Clipboard *Clipboard
}

func property[T any](ctx context.Context, c Caller, name string) (T, error) {
	return rpc.DecodeResult[T](c.EvalImmediate(ctx, "vscode.env."+name))
}

// AppName returns the editor's product name.
func (e *Env) AppName(ctx context.Context) (string, error) {
	return property[string](ctx, e.caller, "appName")
}

// AppRoot returns the editor's installation directory.
func (e *Env) AppRoot(ctx context.Context) (string, error) {
	return property[string](ctx, e.caller, "appRoot")
}

// AppHost returns where the editor is hosted (desktop, web, ...).
func (e *Env) AppHost(ctx context.Context) (string, error) {
	return property[string](ctx, e.caller, "appHost")
}

// Language returns the UI display language.
func (e *Env) Language(ctx context.Context) (string, error) {
	return property[string](ctx, e.caller, "language")
}

// MachineID returns an anonymous machine identifier.
func (e *Env) MachineID(ctx context.Context) (string, error) {
	return property[string](ctx, e.caller, "machineId")
}

// SessionID returns the current editor session id.
func (e *Env) SessionID(ctx context.Context) (string, error) {
	return property[string](ctx, e.caller, "sessionId")
}

// RemoteName returns the remote authority name, empty when local.
func (e *Env) RemoteName(ctx context.Context) (string, error) {
	return property[string](ctx, e.caller, "remoteName")
}

// Shell returns the default terminal shell.
func (e *Env) Shell(ctx context.Context) (string, error) {
	return property[string](ctx, e.caller, "shell")
}

// URIScheme returns the editor's custom URI scheme.
func (e *Env) URIScheme(ctx context.Context) (string, error) {
	return property[string](ctx, e.caller, "uriScheme")
}

// UIKind returns 1 for desktop and 2 for web.
func (e *Env) UIKind(ctx context.Context) (int, error) {
	return property[int](ctx, e.caller, "uiKind")
}

// IsNewAppInstall returns whether this is the first day of the install.
func (e *Env) IsNewAppInstall(ctx context.Context) (bool, error) {
	return property[bool](ctx, e.caller, "isNewAppInstall")
}

// IsTelemetryEnabled returns whether the user allows telemetry.
func (e *Env) IsTelemetryEnabled(ctx context.Context) (bool, error) {
	return property[bool](ctx, e.caller, "isTelemetryEnabled")
}

// OpenExternal opens uri with the system handler and reports whether it succeeded.
func (e *Env) OpenExternal(ctx context.Context, uri string) (bool, error) {
	return rpc.DecodeResult[bool](e.caller.Eval(ctx, fmt.Sprintf("vscode.env.openExternal(vscode.Uri.parse(%s))", jsValue(uri))))
}

// Clipboard wraps vscode.env.clipboard.
type Clipboard struct {
	caller Caller
}

// Read returns the clipboard text.
func (c *Clipboard) Read(ctx context.Context) (string, error) {
	return rpc.DecodeResult[string](c.caller.Eval(ctx, "vscode.env.clipboard.readText()"))
}

// Write replaces the clipboard text.
func (c *Clipboard) Write(ctx context.Context, text string) error {
	return c.caller.Exec(ctx, fmt.Sprintf("vscode.env.clipboard.writeText(%s);", jsValue(text)))
}
