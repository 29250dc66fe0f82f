package hostapi

import (
	"context"
	"fmt"

	"github.com/extension-bridge/backend/internal/rpc"
)

// TextDocument summarizes a document opened on the host.
type TextDocument struct {
	URI        string `json:"uri"`
	FileName   string `json:"fileName"`
	LanguageID string `json:"languageId"`
	LineCount  int    `json:"lineCount"`
	IsUntitled bool   `json:"isUntitled"`
}

const documentSummary = `.then((d) => ({ uri: d.uri.toString(), fileName: d.fileName, languageId: d.languageId, lineCount: d.lineCount, isUntitled: d.isUntitled }))`

// Workspace wraps vscode.workspace.
type Workspace struct {
	caller Caller
}

// OpenTextDocument opens the file at path.
func (w *Workspace) OpenTextDocument(ctx context.Context, path string) (TextDocument, error) {
	code := fmt.Sprintf("vscode.workspace.openTextDocument(%s)%s", jsValue(path), documentSummary)
	return rpc.DecodeResult[TextDocument](w.caller.Eval(ctx, code))
}

// OpenUntitledDocument opens a new unsaved document with optional content and language.
func (w *Workspace) OpenUntitledDocument(ctx context.Context, content, language string) (TextDocument, error) {
	opts := map[string]string{}
	if content != "" {
		opts["content"] = content
	}
	if language != "" {
		opts["language"] = language
	}
	code := fmt.Sprintf("vscode.workspace.openTextDocument(%s)%s", jsValue(opts), documentSummary)
	return rpc.DecodeResult[TextDocument](w.caller.Eval(ctx, code))
}
