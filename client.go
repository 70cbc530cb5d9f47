// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package delegate

import (
	"context"
	"errors"
	"sync"
)

// slotArena recycles slots between clients. A slot is only returned once
// Unregister has confirmed the dispatcher dropped it, so a recycled slot is
// never still referenced by a roster.
var slotArena = sync.Pool{New: func() any { return NewSlot() }}

// Client is a convenience wrapper pairing a slot, drawn from a shared arena,
// with the server it is registered to.
//
// A Client must only be used by one goroutine at a time.
type Client struct {
	server    *Server
	slot      *Slot
	spin      SpinPolicy
	completed uint64
	// closing is set once Close has queued the removal
	closing bool
}

// NewClient registers a new client, see [Server.Register] for the errors.
// The client must be closed, to release its slot.
func (x *Server) NewClient() (*Client, error) {
	s := slotArena.Get().(*Slot)
	s.reset()
	if err := x.Register(s); err != nil {
		slotArena.Put(s)
		return nil, err
	}
	return &Client{server: x, slot: s, spin: x.spin}, nil
}

// Do requests a job of the given kind, and waits for the outcome.
func (c *Client) Do(kind JobKind) error {
	if c.slot == nil || c.closing {
		return ErrClientClosed
	}
	if err := c.slot.Do(kind, c.spin); err != nil {
		return err
	}
	c.completed++
	return nil
}

// Perform requests one run of the work unit, and waits for it to complete.
func (c *Client) Perform() error {
	return c.Do(JobPerform)
}

// Completed returns the number of jobs this client completed successfully.
func (c *Client) Completed() uint64 {
	return c.completed
}

// Slot returns the underlying slot, or nil once closed.
func (c *Client) Slot() *Slot {
	return c.slot
}

// Server returns the server the client is registered with.
func (c *Client) Server() *Server {
	return c.server
}

// Close unregisters the client, waiting for the dispatcher to drop it, then
// returns its slot to the arena. If ctx is done first, the slot is not
// recycled, further jobs fail with [ErrClientClosed], and Close may be called
// again. Close is idempotent.
func (c *Client) Close(ctx context.Context) error {
	if c.slot == nil {
		return nil
	}
	err := c.server.Unregister(ctx, c.slot)
	if err != nil {
		if !errors.Is(err, ErrSlotNotRegistered) && !errors.Is(err, ErrReentrant) {
			c.closing = true
		}
		return err
	}
	slotArena.Put(c.slot)
	c.slot = nil
	return nil
}
