package dispatch

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/extension-bridge/backend/internal/hostapi"
	"github.com/extension-bridge/backend/internal/registry"
	"github.com/extension-bridge/backend/internal/rpc"
)

type stubWebviews struct {
	events atomic.Int32
}

func (s *stubWebviews) HandleEvent(ctx context.Context, id, name string, data json.RawMessage) bool {
	if id != "known" {
		return false
	}
	s.events.Add(1)
	return true
}

type fixture struct {
	reg      *registry.Registry
	table    *rpc.Table
	webviews *stubWebviews
	d        *Dispatcher
}

func newFixture() *fixture {
	f := &fixture{reg: registry.New(), table: rpc.NewTable(), webviews: &stubWebviews{}}
	f.d = New(f.reg, hostapi.Surface{}, f.table, f.webviews, nil)
	return f
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.d.Wait(ctx); err != nil {
		t.Fatalf("handlers did not finish: %v", err)
	}
}

func TestDispatchCommand(t *testing.T) {
	f := newFixture()
	var calls atomic.Int32
	var name atomic.Value
	f.reg.RegisterCommand("extension.helloWorld", func(ctx context.Context, c *hostapi.Context) error {
		calls.Add(1)
		name.Store(c.Command)
		return nil
	})

	f.d.DispatchRaw(context.Background(), []byte(`{"type":1,"name":"extension.helloWorld"}`))
	f.wait(t)

	if calls.Load() != 1 {
		t.Fatalf("expected one call, got %d", calls.Load())
	}
	if name.Load() != "extension.helloWorld" {
		t.Errorf("context command = %v", name.Load())
	}
}

func TestDispatchEventPassesData(t *testing.T) {
	f := newFixture()
	got := make(chan string, 1)
	f.reg.RegisterEvent("onDidChange", func(ctx context.Context, c *hostapi.Context, data json.RawMessage) error {
		got <- c.Event + " " + string(data)
		return nil
	})

	f.d.DispatchRaw(context.Background(), []byte(`{"type":2,"event":"onDidChange","data":[1,2]}`))
	f.wait(t)

	if v := <-got; v != "onDidChange [1,2]" {
		t.Errorf("unexpected handler input %q", v)
	}
}

func TestDispatchResultResolvesPending(t *testing.T) {
	f := newFixture()
	ch := f.table.Register("req-1")

	f.d.DispatchRaw(context.Background(), []byte(`{"type":3,"id":"req-1","res":"ok"}`))

	select {
	case out := <-ch:
		if string(out.Res) != `"ok"` {
			t.Errorf("unexpected result %s", out.Res)
		}
	case <-time.After(time.Second):
		t.Fatal("pending request was not resolved")
	}
}

func TestDispatchWebviewEvent(t *testing.T) {
	f := newFixture()

	f.d.DispatchRaw(context.Background(), []byte(`{"type":4,"id":"known","name":"message","data":1}`))
	f.d.DispatchRaw(context.Background(), []byte(`{"type":4,"id":"missing","name":"message"}`))

	if f.webviews.events.Load() != 1 {
		t.Errorf("expected one routed webview event, got %d", f.webviews.events.Load())
	}
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	f := newFixture()
	var ran atomic.Int32
	f.reg.RegisterCommand("boom", func(context.Context, *hostapi.Context) error { panic("boom") })
	f.reg.RegisterCommand("fine", func(context.Context, *hostapi.Context) error {
		ran.Add(1)
		return nil
	})

	f.d.DispatchRaw(context.Background(), []byte(`{"type":1,"name":"boom"}`))
	f.d.DispatchRaw(context.Background(), []byte(`{"type":1,"name":"fine"}`))
	f.wait(t)

	if ran.Load() != 1 {
		t.Errorf("expected healthy handler to run after a panic, got %d", ran.Load())
	}
}

func TestDispatchDoesNotWaitForHandlers(t *testing.T) {
	f := newFixture()
	release := make(chan struct{})
	second := make(chan struct{})
	f.reg.RegisterCommand("slow", func(context.Context, *hostapi.Context) error {
		<-release
		return nil
	})
	f.reg.RegisterCommand("fast", func(context.Context, *hostapi.Context) error {
		close(second)
		return nil
	})

	f.d.DispatchRaw(context.Background(), []byte(`{"type":1,"name":"slow"}`))
	f.d.DispatchRaw(context.Background(), []byte(`{"type":1,"name":"fast"}`))

	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("a blocked handler held up the next dispatch")
	}
	close(release)
	f.wait(t)
}

// Frames naming nothing registered never run a handler and never touch the
// correlation table.
func TestUnknownNamesAreNoOpsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("unregistered names do nothing", prop.ForAll(
		func(name string, kind int) bool {
			f := newFixture()
			var calls atomic.Int32
			f.reg.RegisterCommand("registered", func(context.Context, *hostapi.Context) error {
				calls.Add(1)
				return nil
			})
			f.reg.RegisterEvent("registered", func(context.Context, *hostapi.Context, json.RawMessage) error {
				calls.Add(1)
				return nil
			})
			f.table.Register("pending")

			if name == "registered" {
				name += "-other"
			}
			var raw []byte
			switch kind {
			case 1:
				raw, _ = json.Marshal(map[string]any{"type": 1, "name": name})
			case 2:
				raw, _ = json.Marshal(map[string]any{"type": 2, "event": name})
			case 3:
				raw, _ = json.Marshal(map[string]any{"type": 3, "id": name, "res": 1})
			default:
				raw, _ = json.Marshal(map[string]any{"type": 4, "id": name + "-webview", "name": "message"})
			}

			f.d.DispatchRaw(context.Background(), raw)
			f.d.Wait(context.Background())

			return calls.Load() == 0 && f.table.Len() == 1 && f.webviews.events.Load() == 0
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "pending" && s != "known" }),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}

func TestMalformedFramesAreDropped(t *testing.T) {
	f := newFixture()
	var calls atomic.Int32
	f.reg.RegisterCommand("cmd", func(context.Context, *hostapi.Context) error {
		calls.Add(1)
		return nil
	})

	for _, raw := range []string{`not json`, `{"name":"cmd"}`, `{"type":7,"name":"cmd"}`, `[]`} {
		f.d.DispatchRaw(context.Background(), []byte(raw))
	}
	f.wait(t)

	if calls.Load() != 0 {
		t.Errorf("malformed frames must not dispatch, got %d calls", calls.Load())
	}
}
