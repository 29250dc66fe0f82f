// Package rpc implements the outbound side of the bridge: the correlation table
// and the client that issues fire-and-forget and correlated evaluations.
package rpc

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/extension-bridge/backend/internal/observability"
)

// Outcome is the single resolution of a pending request.
type Outcome struct {
	Res json.RawMessage
	Err error
}

// Table maps correlation ids to the one-shot channel of their waiting caller.
type Table struct {
	mu      sync.Mutex
	pending map[string]chan Outcome
}

// NewTable creates an empty correlation table.
func NewTable() *Table {
	return &Table{
		pending: make(map[string]chan Outcome),
	}
}

// Register records interest in id and returns the channel its outcome arrives on.
// Reusing an id that is still pending replaces the earlier waiter, which then
// only resolves through FailAll or its own context.
func (t *Table) Register(id string) <-chan Outcome {
	ch := make(chan Outcome, 1)

	t.mu.Lock()
	_, existed := t.pending[id]
	t.pending[id] = ch
	t.mu.Unlock()

	if !existed {
		observability.PendingAdded()
	}
	return ch
}

// Resolve delivers res to the caller waiting on id.
// It returns false when id is not pending (already resolved, cancelled, or never issued).
func (t *Table) Resolve(id string, res json.RawMessage) bool {
	ch, ok := t.take(id)
	if !ok {
		return false
	}
	ch <- Outcome{Res: res}
	return true
}

// Cancel forgets id without resolving it. Used when the owning caller gives up.
func (t *Table) Cancel(id string) bool {
	_, ok := t.take(id)
	return ok
}

// FailAll resolves every pending request with err and returns how many were failed.
func (t *Table) FailAll(err error) int {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[string]chan Outcome)
	t.mu.Unlock()

	for _, ch := range pending {
		ch <- Outcome{Err: err}
	}
	observability.PendingRemoved(len(pending))
	return len(pending)
}

// Len returns the number of pending requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// IDs returns the pending correlation ids in sorted order.
func (t *Table) IDs() []string {
	t.mu.Lock()
	out := make([]string, 0, len(t.pending))
	for id := range t.pending {
		out = append(out, id)
	}
	t.mu.Unlock()

	sort.Strings(out)
	return out
}

func (t *Table) take(id string) (chan Outcome, bool) {
	t.mu.Lock()
	ch, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if ok {
		observability.PendingRemoved(1)
	}
	return ch, ok
}
