package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/extension-bridge/backend/internal/model"
	"github.com/extension-bridge/backend/internal/observability"
	"github.com/extension-bridge/backend/internal/protocol"
)

// Sender hands one envelope to the active host connection.
type Sender interface {
	Send(ctx context.Context, env protocol.Envelope) error
}

// Options configure a Client.
type Options struct {
	// Timeout bounds every correlated evaluation. Zero means no deadline
	// beyond the caller's context and the connection lifetime.
	Timeout time.Duration

	// NewID overrides correlation id generation. Defaults to uuid v4.
	NewID func() string
}

// Client issues outbound requests to the host.
type Client struct {
	sender  Sender
	table   *Table
	timeout time.Duration
	newID   func() string
}

// NewClient creates a client that sends through sender and correlates through table.
func NewClient(sender Sender, table *Table, opts Options) *Client {
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}
	return &Client{
		sender:  sender,
		table:   table,
		timeout: opts.Timeout,
		newID:   newID,
	}
}

// Exec sends code for fire-and-forget execution. Only local failures are reported;
// the host never acknowledges the request.
func (c *Client) Exec(ctx context.Context, code string) error {
	return c.sender.Send(ctx, protocol.ExecMessage(code))
}

// Eval sends code the host resolves asynchronously and waits for its result.
func (c *Client) Eval(ctx context.Context, code string) (json.RawMessage, error) {
	return c.call(ctx, "thenable", code, protocol.ThenableMessage)
}

// EvalImmediate sends code the host evaluates synchronously and waits for its result.
func (c *Client) EvalImmediate(ctx context.Context, code string) (json.RawMessage, error) {
	return c.call(ctx, "immediate", code, protocol.ImmediateMessage)
}

// Pending returns the number of requests awaiting a response.
func (c *Client) Pending() int {
	return c.table.Len()
}

func (c *Client) call(ctx context.Context, mode, code string, build func(code, id string) protocol.Envelope) (json.RawMessage, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	id := c.newID()
	started := time.Now()
	ch := c.table.Register(id)

	if err := c.sender.Send(ctx, build(code, id)); err != nil {
		c.table.Cancel(id)
		observability.ObserveRequest(mode, "send_failed", time.Since(started))
		return nil, err
	}

	select {
	case out := <-ch:
		return finish(mode, started, out)
	case <-ctx.Done():
		if !c.table.Cancel(id) {
			// Resolved while the context fired; the outcome is already on its way.
			return finish(mode, started, <-ch)
		}
		log.Debug().Str("id", id).Str("mode", mode).Err(ctx.Err()).Msg("abandoned pending request")
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			observability.ObserveRequest(mode, "timeout", time.Since(started))
			return nil, fmt.Errorf("%w: %s", model.ErrRequestTimeout, id)
		}
		observability.ObserveRequest(mode, "cancelled", time.Since(started))
		return nil, ctx.Err()
	}
}

func finish(mode string, started time.Time, out Outcome) (json.RawMessage, error) {
	if out.Err != nil {
		observability.ObserveRequest(mode, "failed", time.Since(started))
		return nil, out.Err
	}
	observability.ObserveRequest(mode, "ok", time.Since(started))
	return out.Res, nil
}

// DecodeResult unmarshals a result returned by Eval or EvalImmediate.
func DecodeResult[T any](raw json.RawMessage, err error) (T, error) {
	var v T
	if err != nil {
		return v, err
	}
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode host result: %w", err)
	}
	return v, nil
}
