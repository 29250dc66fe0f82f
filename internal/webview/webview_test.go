package webview

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/extension-bridge/backend/internal/model"
)

type fakeExec struct {
	mu     sync.Mutex
	codes  []string
	err    error
	onExec func(code string)
}

func (f *fakeExec) Exec(ctx context.Context, code string) error {
	f.mu.Lock()
	f.codes = append(f.codes, code)
	hook, err := f.onExec, f.err
	f.mu.Unlock()
	if hook != nil {
		hook(code)
	}
	return err
}

func (f *fakeExec) EvalImmediate(ctx context.Context, code string) (json.RawMessage, error) {
	f.mu.Lock()
	f.codes = append(f.codes, code)
	f.mu.Unlock()
	return json.RawMessage("true"), nil
}

func (f *fakeExec) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.codes...)
}

type disposal struct {
	id     string
	origin model.DisposeOrigin
}

type recordingObserver struct {
	mu       sync.Mutex
	created  []model.WebviewRecord
	disposed []disposal
}

func (o *recordingObserver) WebviewCreated(ctx context.Context, rec model.WebviewRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created = append(o.created, rec)
}

func (o *recordingObserver) WebviewDisposed(ctx context.Context, id string, origin model.DisposeOrigin, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.disposed = append(o.disposed, disposal{id: id, origin: origin})
}

func inline(fn func()) { fn() }

func newManager(exec *fakeExec, obs Observer) *Manager {
	return NewManager(exec, Options{Observer: obs, Spawn: inline, NewID: func() string { return "panel-1" }})
}

func TestCreate(t *testing.T) {
	exec := &fakeExec{}
	obs := &recordingObserver{}
	m := newManager(exec, obs)

	activated := 0
	p, err := m.Create(context.Background(), "Preview", ColumnTwo, Hooks{
		OnActivate: func(ctx context.Context, p *Panel) { activated++ },
	})
	require.NoError(t, err)

	assert.Equal(t, StateRunning, p.State())
	assert.Equal(t, ViewState{Active: true, Visible: true, Column: ColumnTwo}, p.ViewState())
	assert.Equal(t, 1, activated)

	got, ok := m.Get("panel-1")
	require.True(t, ok)
	assert.Same(t, p, got)

	codes := exec.sent()
	require.Len(t, codes, 1)
	assert.Contains(t, codes[0], `createWebviewPanel(id, "Preview", 2`)
	assert.Contains(t, codes[0], `const id = "panel-1"`)

	require.Len(t, obs.created, 1)
	assert.Equal(t, model.WebviewStatusRunning, obs.created[0].Status)
}

func TestCreateDefaultsToColumnOne(t *testing.T) {
	m := newManager(&fakeExec{}, nil)
	p, err := m.Create(context.Background(), "x", 0, Hooks{})
	require.NoError(t, err)
	assert.Equal(t, ColumnOne, p.Column())
}

func TestCreateFailureRollsBack(t *testing.T) {
	exec := &fakeExec{err: model.ErrNotConnected}
	m := newManager(exec, nil)

	p, err := m.Create(context.Background(), "x", ColumnOne, Hooks{})
	assert.ErrorIs(t, err, model.ErrNotConnected)
	assert.Nil(t, p)
	assert.Zero(t, m.Len())
}

// A panel is registered before its creation request leaves, so host events
// raced against creation still find it.
func TestRegisteredBeforeCreationSent(t *testing.T) {
	exec := &fakeExec{}
	m := newManager(exec, nil)

	var routed bool
	var setErr, disposeErr error
	exec.onExec = func(code string) {
		if !strings.Contains(code, "createWebviewPanel") {
			return
		}
		routed = m.HandleEvent(context.Background(), "panel-1", EventMessage, json.RawMessage(`1`))
		p, _ := m.Get("panel-1")
		setErr = p.SetHTML(context.Background(), "<p>early</p>")
		disposeErr = p.Dispose(context.Background())
	}

	_, err := m.Create(context.Background(), "x", ColumnOne, Hooks{})
	require.NoError(t, err)
	assert.True(t, routed)
	assert.ErrorIs(t, setErr, model.ErrWebviewNotRunning)
	assert.ErrorIs(t, disposeErr, model.ErrWebviewNotRunning)
}

func TestMutationsSendCode(t *testing.T) {
	exec := &fakeExec{}
	m := newManager(exec, nil)
	p, err := m.Create(context.Background(), "Old", ColumnThree, Hooks{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, p.SetHTML(ctx, `say "hi"`))
	require.NoError(t, p.UpdateTitle(ctx, "New"))
	require.NoError(t, p.PostMessage(ctx, map[string]int{"n": 1}))
	require.NoError(t, p.Reveal(ctx, 0))
	require.NoError(t, p.Reveal(ctx, ColumnBeside))
	visible, err := p.IsVisible(ctx)
	require.NoError(t, err)
	assert.True(t, visible)

	assert.Equal(t, []string{
		`webviews["panel-1"].webview.html = "say \"hi\"";`,
		`webviews["panel-1"].title = "New";`,
		`webviews["panel-1"].webview.postMessage({"n":1});`,
		`webviews["panel-1"].reveal(3);`,
		`webviews["panel-1"].reveal(-2);`,
		`webviews["panel-1"].visible`,
	}, exec.sent()[1:])
	assert.Equal(t, "New", p.Title())
	assert.Equal(t, `say "hi"`, p.HTML())
}

func TestLocalDisposeIsIdempotent(t *testing.T) {
	exec := &fakeExec{}
	obs := &recordingObserver{}
	m := newManager(exec, obs)

	disposed := 0
	p, err := m.Create(context.Background(), "x", ColumnOne, Hooks{
		OnDispose: func(ctx context.Context, p *Panel) { disposed++ },
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, p.Dispose(ctx))
	require.NoError(t, p.Dispose(ctx))

	// The host acknowledges with its own dispose event; the panel is already gone.
	assert.False(t, m.HandleEvent(ctx, p.ID(), EventDispose, nil))

	assert.Equal(t, 1, disposed)
	assert.Equal(t, StateDisposed, p.State())
	assert.Zero(t, m.Len())
	assert.Equal(t, []disposal{{id: "panel-1", origin: model.DisposeOriginLocal}}, obs.disposed)

	codes := exec.sent()
	assert.Equal(t, `webviews["panel-1"].dispose();`, codes[len(codes)-1])
	assert.Len(t, codes, 2)

	for _, err := range []error{
		p.SetHTML(ctx, "x"),
		p.UpdateTitle(ctx, "x"),
		p.PostMessage(ctx, 1),
		p.Reveal(ctx, ColumnOne),
	} {
		assert.ErrorIs(t, err, model.ErrWebviewDisposed)
	}
	_, err = p.IsVisible(ctx)
	assert.ErrorIs(t, err, model.ErrWebviewDisposed)
	assert.Len(t, exec.sent(), 2, "disposed panels must not reach the host")
}

func TestHostDispose(t *testing.T) {
	exec := &fakeExec{}
	obs := &recordingObserver{}
	m := newManager(exec, obs)

	disposed := 0
	p, err := m.Create(context.Background(), "x", ColumnOne, Hooks{
		OnDispose: func(ctx context.Context, p *Panel) { disposed++ },
	})
	require.NoError(t, err)

	assert.True(t, m.HandleEvent(context.Background(), p.ID(), EventDispose, nil))
	assert.False(t, m.HandleEvent(context.Background(), p.ID(), EventDispose, nil))
	require.NoError(t, p.Dispose(context.Background()))

	assert.Equal(t, 1, disposed)
	assert.Len(t, exec.sent(), 1, "host-initiated disposal sends nothing back")
	assert.Equal(t, []disposal{{id: "panel-1", origin: model.DisposeOriginHost}}, obs.disposed)
}

func TestMessageAndCustomEvents(t *testing.T) {
	m := newManager(&fakeExec{}, nil)

	var messages, custom []string
	p, err := m.Create(context.Background(), "x", ColumnOne, Hooks{
		OnMessage: func(ctx context.Context, p *Panel, data json.RawMessage) { messages = append(messages, string(data)) },
		Events: map[string]func(context.Context, *Panel, json.RawMessage){
			"saved": func(ctx context.Context, p *Panel, data json.RawMessage) { custom = append(custom, string(data)) },
		},
	})
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, m.HandleEvent(ctx, p.ID(), EventMessage, json.RawMessage(`{"kind":"ping"}`)))
	assert.True(t, m.HandleEvent(ctx, p.ID(), "saved", json.RawMessage(`"a.txt"`)))
	assert.True(t, m.HandleEvent(ctx, p.ID(), "unheard-of", nil))
	assert.False(t, m.HandleEvent(ctx, "other-panel", EventMessage, nil))

	assert.Equal(t, []string{`{"kind":"ping"}`}, messages)
	assert.Equal(t, []string{`"a.txt"`}, custom)
}

func TestDisposeAllOnDisconnect(t *testing.T) {
	exec := &fakeExec{}
	obs := &recordingObserver{}
	n := 0
	m := NewManager(exec, Options{Observer: obs, Spawn: inline, NewID: func() string {
		n++
		return string(rune('a' + n - 1))
	}})

	var hooks int
	for i := 0; i < 3; i++ {
		_, err := m.Create(context.Background(), "x", ColumnOne, Hooks{
			OnDispose: func(ctx context.Context, p *Panel) { hooks++ },
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, m.DisposeAll(context.Background()))
	assert.Equal(t, 0, m.DisposeAll(context.Background()))
	assert.Equal(t, 3, hooks)
	assert.Zero(t, m.Len())
	assert.Len(t, exec.sent(), 3, "no dispose code is sent to a lost host")
	for _, d := range obs.disposed {
		assert.Equal(t, model.DisposeOriginDisconnect, d.origin)
	}
}

func TestListSorted(t *testing.T) {
	ids := []string{"c", "a", "b"}
	i := 0
	m := NewManager(&fakeExec{}, Options{Spawn: inline, NewID: func() string {
		id := ids[i]
		i++
		return id
	}})
	for range ids {
		_, err := m.Create(context.Background(), "x", ColumnOne, Hooks{})
		require.NoError(t, err)
	}

	var got []string
	for _, p := range m.List() {
		got = append(got, p.ID())
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestInvalidViewStateIgnored(t *testing.T) {
	m := newManager(&fakeExec{}, nil)
	calls := 0
	p, err := m.Create(context.Background(), "x", ColumnOne, Hooks{
		OnViewStateChange: func(context.Context, *Panel, ViewState, ViewState) { calls++ },
	})
	require.NoError(t, err)

	assert.True(t, m.HandleEvent(context.Background(), p.ID(), EventChangeViewState, json.RawMessage(`"nope"`)))
	assert.Zero(t, calls)
	assert.Equal(t, ViewState{Active: true, Visible: true, Column: ColumnOne}, p.ViewState())
}

// Each view state change hook sees the state reported by the previous change as "before".
func TestViewStateChainProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	viewState := gopter.CombineGens(gen.Bool(), gen.Bool(), gen.IntRange(-2, 3)).Map(func(v []interface{}) ViewState {
		return ViewState{Active: v[0].(bool), Visible: v[1].(bool), Column: ViewColumn(v[2].(int))}
	})

	properties.Property("before equals the previous after", prop.ForAll(
		func(states []ViewState) bool {
			type change struct{ before, after ViewState }
			var changes []change
			m := newManager(&fakeExec{}, nil)
			p, err := m.Create(context.Background(), "x", ColumnOne, Hooks{
				OnViewStateChange: func(ctx context.Context, p *Panel, before, after ViewState) {
					changes = append(changes, change{before, after})
				},
			})
			if err != nil {
				return false
			}

			prev := p.ViewState()
			for _, s := range states {
				data, _ := json.Marshal(s)
				m.HandleEvent(context.Background(), p.ID(), EventChangeViewState, data)
			}

			if len(changes) != len(states) {
				return false
			}
			for i, c := range changes {
				if c.before != prev || c.after != states[i] {
					return false
				}
				prev = c.after
			}
			return p.ViewState() == prev
		},
		gen.SliceOf(viewState),
	))

	properties.TestingRun(t)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "disposed", StateDisposed.String())
	assert.Equal(t, "state(9)", State(9).String())
}

// onCreation runs fn when the creation request is sent, before Create returns.
func onCreation(exec *fakeExec, fn func()) {
	exec.onExec = func(code string) {
		if strings.Contains(code, "createWebviewPanel") {
			fn()
		}
	}
}

func TestViewStateReportedDuringCreationIsKept(t *testing.T) {
	exec := &fakeExec{}
	m := newManager(exec, nil)
	hidden := ViewState{Active: false, Visible: false, Column: ColumnTwo}
	onCreation(exec, func() {
		data, _ := json.Marshal(hidden)
		m.HandleEvent(context.Background(), "panel-1", EventChangeViewState, data)
	})

	var befores []ViewState
	p, err := m.Create(context.Background(), "x", ColumnOne, Hooks{
		OnViewStateChange: func(ctx context.Context, p *Panel, before, after ViewState) {
			befores = append(befores, before)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, hidden, p.ViewState())

	shown := ViewState{Active: true, Visible: true, Column: ColumnTwo}
	data, _ := json.Marshal(shown)
	m.HandleEvent(context.Background(), p.ID(), EventChangeViewState, data)

	require.Len(t, befores, 2)
	assert.Equal(t, hidden, befores[1])
	assert.Equal(t, shown, p.ViewState())
}

func TestEventsDuringCreationRunAfterActivate(t *testing.T) {
	exec := &fakeExec{}
	m := newManager(exec, nil)
	onCreation(exec, func() {
		m.HandleEvent(context.Background(), "panel-1", EventMessage, json.RawMessage(`"early"`))
		m.HandleEvent(context.Background(), "panel-1", "saved", json.RawMessage(`"a.txt"`))
	})

	var order []string
	_, err := m.Create(context.Background(), "x", ColumnOne, Hooks{
		OnActivate: func(ctx context.Context, p *Panel) { order = append(order, "activate") },
		OnMessage: func(ctx context.Context, p *Panel, data json.RawMessage) {
			order = append(order, "message "+string(data))
		},
		Events: map[string]func(context.Context, *Panel, json.RawMessage){
			"saved": func(ctx context.Context, p *Panel, data json.RawMessage) { order = append(order, "saved") },
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"activate", `message "early"`, "saved"}, order)
}

func TestHostDisposeDuringCreation(t *testing.T) {
	exec := &fakeExec{}
	obs := &recordingObserver{}
	m := newManager(exec, obs)
	onCreation(exec, func() {
		m.HandleEvent(context.Background(), "panel-1", EventMessage, json.RawMessage(`1`))
		m.HandleEvent(context.Background(), "panel-1", EventDispose, nil)
	})

	var hooks []string
	p, err := m.Create(context.Background(), "x", ColumnOne, Hooks{
		OnActivate: func(ctx context.Context, p *Panel) { hooks = append(hooks, "activate") },
		OnMessage:  func(ctx context.Context, p *Panel, data json.RawMessage) { hooks = append(hooks, "message") },
		OnDispose:  func(ctx context.Context, p *Panel) { hooks = append(hooks, "dispose") },
	})
	assert.ErrorIs(t, err, model.ErrWebviewDisposed)
	assert.Nil(t, p)
	assert.Empty(t, hooks)
	assert.Zero(t, m.Len())
	assert.Empty(t, obs.created)
	assert.Empty(t, obs.disposed)
}

func TestEmptyViewStateIgnored(t *testing.T) {
	m := newManager(&fakeExec{}, nil)
	calls := 0
	p, err := m.Create(context.Background(), "x", ColumnTwo, Hooks{
		OnViewStateChange: func(context.Context, *Panel, ViewState, ViewState) { calls++ },
	})
	require.NoError(t, err)

	for _, data := range []json.RawMessage{nil, json.RawMessage(`null`)} {
		assert.True(t, m.HandleEvent(context.Background(), p.ID(), EventChangeViewState, data))
	}
	assert.Zero(t, calls)
	assert.Equal(t, ViewState{Active: true, Visible: true, Column: ColumnTwo}, p.ViewState())
}
