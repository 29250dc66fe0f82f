package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/extension-bridge/backend/pkg/bridge"
)

const previewHTML = `<!DOCTYPE html>
<html>
<body>
  <h1>Bridge preview</h1>
  <button onclick="vscode.postMessage({kind: 'ping', at: Date.now()})">Ping</button>
  <pre id="log"></pre>
  <script>
    const vscode = acquireVsCodeApi();
    window.addEventListener('message', e => {
      document.getElementById('log').textContent += JSON.stringify(e.data) + '\n';
    });
  </script>
</body>
</html>`

func registerCommands(ext *bridge.Extension) error {
	commands := map[string]bridge.CommandHandler{
		"example.greet":    greet,
		"example.pick":     pick,
		"example.progress": runProgress,
		"example.preview":  openPreview,
		"example.env":      showEnv,
	}
	for name, h := range commands {
		if err := ext.Command(name, h); err != nil {
			return err
		}
	}

	if err := ext.Event(bridge.ActivateEvent, func(ctx context.Context, c *bridge.Context, _ json.RawMessage) error {
		return c.Window.SetStatusBarMessage(ctx, "Example extension connected", 5*time.Second)
	}); err != nil {
		return err
	}
	return ext.Event("onDidSaveTextDocument", func(ctx context.Context, c *bridge.Context, data json.RawMessage) error {
		log.Info().RawJSON("document", data).Msg("document saved")
		return nil
	})
}

func greet(ctx context.Context, c *bridge.Context) error {
	name, ok, err := c.Window.ShowInputBox(ctx, bridge.InputBoxOptions{Prompt: "Who should we greet?", PlaceHolder: "world"})
	if err != nil || !ok {
		return err
	}
	if name == "" {
		name = "world"
	}

	choice, err := c.Window.ShowInfo(ctx, fmt.Sprintf("Hello, %s!", name), "Again", "Done")
	if err != nil {
		return err
	}
	if choice == "Again" {
		return greet(ctx, c)
	}
	return nil
}

func pick(ctx context.Context, c *bridge.Context) error {
	picked, err := c.Window.ShowQuickPick(ctx, []bridge.QuickPickItem{
		{Label: "gorilla", Description: "websocket transport"},
		{Label: "zerolog", Description: "structured logging"},
		{Label: "gin", Description: "HTTP routing"},
	}, bridge.QuickPickOptions{PlaceHolder: "Pick libraries", CanPickMany: true})
	if err != nil {
		return err
	}
	if len(picked) == 0 {
		return nil
	}

	labels := make([]string, 0, len(picked))
	for _, item := range picked {
		labels = append(labels, item.Label)
	}
	_, err = c.Window.ShowInfo(ctx, fmt.Sprintf("Picked %v", labels))
	return err
}

func runProgress(ctx context.Context, c *bridge.Context) error {
	return c.Window.Progress(ctx, "Crunching", bridge.LocationNotification, func(s *bridge.Scope) error {
		for i := 1; i <= 5; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(300 * time.Millisecond):
			}
			if err := s.Report(ctx, 20, fmt.Sprintf("step %d of 5", i)); err != nil {
				return err
			}
		}
		return nil
	})
}

func openPreview(ctx context.Context, c *bridge.Context) error {
	_, err := c.Window.CreateWebview(ctx, "Bridge preview", bridge.ColumnBeside, bridge.Hooks{
		OnActivate: func(ctx context.Context, p *bridge.Panel) {
			if err := p.SetHTML(ctx, previewHTML); err != nil {
				log.Warn().Err(err).Str("webview", p.ID()).Msg("set html failed")
			}
		},
		OnMessage: func(ctx context.Context, p *bridge.Panel, data json.RawMessage) {
			if err := p.PostMessage(ctx, map[string]any{"echo": data}); err != nil {
				log.Warn().Err(err).Str("webview", p.ID()).Msg("post message failed")
			}
		},
		OnViewStateChange: func(ctx context.Context, p *bridge.Panel, before, after bridge.ViewState) {
			log.Debug().Str("webview", p.ID()).Bool("was_visible", before.Visible).Bool("visible", after.Visible).Msg("view state changed")
		},
		OnDispose: func(ctx context.Context, p *bridge.Panel) {
			log.Info().Str("webview", p.ID()).Msg("preview closed")
		},
	})
	return err
}

func showEnv(ctx context.Context, c *bridge.Context) error {
	app, err := c.Env.AppName(ctx)
	if err != nil {
		return err
	}
	lang, err := c.Env.Language(ctx)
	if err != nil {
		return err
	}
	_, err = c.Window.ShowInfo(ctx, fmt.Sprintf("%s (%s)", app, lang))
	return err
}
