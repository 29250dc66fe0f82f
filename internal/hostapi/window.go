package hostapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/extension-bridge/backend/internal/progress"
	"github.com/extension-bridge/backend/internal/rpc"
	"github.com/extension-bridge/backend/internal/webview"
)

// MessageSeverity selects the host notification style.
type MessageSeverity string

const (
	SeverityInfo    MessageSeverity = "showInformationMessage"
	SeverityWarning MessageSeverity = "showWarningMessage"
	SeverityError   MessageSeverity = "showErrorMessage"
)

// InputBoxOptions configure the host input box.
type InputBoxOptions struct {
	Title          string `json:"title,omitempty"`
	Prompt         string `json:"prompt,omitempty"`
	PlaceHolder    string `json:"placeHolder,omitempty"`
	Value          string `json:"value,omitempty"`
	Password       bool   `json:"password,omitempty"`
	IgnoreFocusOut bool   `json:"ignoreFocusOut,omitempty"`
}

// QuickPickItem is one selectable entry.
type QuickPickItem struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Detail      string `json:"detail,omitempty"`
	Picked      bool   `json:"picked,omitempty"`
	AlwaysShow  bool   `json:"alwaysShow,omitempty"`
}

// QuickPickOptions configure the host quick pick.
type QuickPickOptions struct {
	Title              string `json:"title,omitempty"`
	PlaceHolder        string `json:"placeHolder,omitempty"`
	CanPickMany        bool   `json:"canPickMany,omitempty"`
	IgnoreFocusOut     bool   `json:"ignoreFocusOut,omitempty"`
	MatchOnDescription bool   `json:"matchOnDescription,omitempty"`
	MatchOnDetail      bool   `json:"matchOnDetail,omitempty"`
}

// Window wraps vscode.window.
type Window struct {
	caller   Caller
	webviews *webview.Manager
	progress *progress.Manager
}

// ShowMessage shows a notification and waits for the chosen item.
// The returned string is empty when the user dismissed it.
func (w *Window) ShowMessage(ctx context.Context, severity MessageSeverity, text string, items ...string) (string, error) {
	args := make([]string, 0, len(items)+1)
	args = append(args, jsValue(text))
	for _, item := range items {
		args = append(args, jsValue(item))
	}
	code := fmt.Sprintf("vscode.window.%s(%s)", severity, strings.Join(args, ", "))
	choice, err := rpc.DecodeResult[*string](w.caller.Eval(ctx, code))
	if err != nil || choice == nil {
		return "", err
	}
	return *choice, nil
}

// ShowInfo shows an information message.
func (w *Window) ShowInfo(ctx context.Context, text string, items ...string) (string, error) {
	return w.ShowMessage(ctx, SeverityInfo, text, items...)
}

// ShowWarning shows a warning message.
func (w *Window) ShowWarning(ctx context.Context, text string, items ...string) (string, error) {
	return w.ShowMessage(ctx, SeverityWarning, text, items...)
}

// ShowError shows an error message.
func (w *Window) ShowError(ctx context.Context, text string, items ...string) (string, error) {
	return w.ShowMessage(ctx, SeverityError, text, items...)
}

// ShowInputBox asks the user for a string. ok is false when the box was cancelled.
func (w *Window) ShowInputBox(ctx context.Context, opts InputBoxOptions) (value string, ok bool, err error) {
	v, err := rpc.DecodeResult[*string](w.caller.Eval(ctx, fmt.Sprintf("vscode.window.showInputBox(%s)", jsValue(opts))))
	if err != nil || v == nil {
		return "", false, err
	}
	return *v, true, nil
}

// ShowQuickPick lets the user pick from items. The result holds one item unless
// opts.CanPickMany is set; it is empty when the pick was cancelled.
func (w *Window) ShowQuickPick(ctx context.Context, items []QuickPickItem, opts QuickPickOptions) ([]QuickPickItem, error) {
	raw, err := w.caller.Eval(ctx, fmt.Sprintf("vscode.window.showQuickPick(%s, %s)", jsValue(items), jsValue(opts)))
	if err != nil {
		return nil, err
	}
	return decodePicks(raw)
}

func decodePicks(raw json.RawMessage) ([]QuickPickItem, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "" || trimmed == "null":
		return nil, nil
	case strings.HasPrefix(trimmed, "["):
		var picks []QuickPickItem
		if err := json.Unmarshal(raw, &picks); err != nil {
			return nil, fmt.Errorf("decode quick pick: %w", err)
		}
		return picks, nil
	default:
		var pick QuickPickItem
		if err := json.Unmarshal(raw, &pick); err != nil {
			return nil, fmt.Errorf("decode quick pick: %w", err)
		}
		return []QuickPickItem{pick}, nil
	}
}

// SetStatusBarMessage shows text in the status bar, hidden after timeout when positive.
func (w *Window) SetStatusBarMessage(ctx context.Context, text string, timeout time.Duration) error {
	if timeout > 0 {
		return w.caller.Exec(ctx, fmt.Sprintf("vscode.window.setStatusBarMessage(%s, %d);", jsValue(text), timeout.Milliseconds()))
	}
	return w.caller.Exec(ctx, fmt.Sprintf("vscode.window.setStatusBarMessage(%s);", jsValue(text)))
}

// Progress runs fn while the host shows a progress indicator.
func (w *Window) Progress(ctx context.Context, title string, location progress.Location, fn func(s *progress.Scope) error) error {
	return w.progress.With(ctx, title, location, fn)
}

// BeginProgress opens a progress scope the caller must End.
func (w *Window) BeginProgress(ctx context.Context, title string, location progress.Location) (*progress.Scope, error) {
	return w.progress.Begin(ctx, title, location)
}

// CreateWebview opens a webview panel.
func (w *Window) CreateWebview(ctx context.Context, title string, column webview.ViewColumn, hooks webview.Hooks) (*webview.Panel, error) {
	return w.webviews.Create(ctx, title, column, hooks)
}
