package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"
)

// Group runs isolated goroutines: a panic is recovered and logged at the
// goroutine boundary and never reaches the caller.
type Group struct {
	wg sync.WaitGroup
}

// Go runs fn on its own goroutine.
func (g *Group) Go(fn func()) {
	g.GoNamed("", "", fn)
}

// GoNamed runs fn on its own goroutine and tags a panic log with kind and name.
func (g *Group) GoNamed(kind, name string, fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				ev := log.Error().Interface("panic", r).Bytes("stack", debug.Stack())
				if kind != "" {
					ev = ev.Str(kind, name)
				}
				ev.Msg("handler goroutine panicked")
			}
		}()
		fn()
	}()
}

// Wait blocks until every goroutine started by Go has returned or ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for handlers: %w", ctx.Err())
	}
}
