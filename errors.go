// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package delegate

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrServerStopped is returned by Register and NewClient once the server
	// has been stopped.
	ErrServerStopped = errors.New("delegate: server has been stopped")

	// ErrDetached is returned when a slot has been detached by a stopping
	// server. This and all future requests on the slot will never be serviced.
	ErrDetached = errors.New("delegate: slot detached by server")

	// ErrRosterFull is returned by Register when the server was configured
	// with a maximum number of clients, and that number is reached.
	ErrRosterFull = errors.New("delegate: roster is full")

	// ErrSlotRegistered is returned by Register when the slot is already
	// registered, with this or any other server.
	ErrSlotRegistered = errors.New("delegate: slot is already registered")

	// ErrSlotNotRegistered is returned by Unregister when the slot is not
	// registered with the server.
	ErrSlotNotRegistered = errors.New("delegate: slot is not registered")

	// ErrSlotDetached is returned by Register for a slot that was detached by
	// a previous server, and has not been reset.
	ErrSlotDetached = errors.New("delegate: slot was detached and must be reset")

	// ErrRequestPending is returned by Slot.Request if the previous request
	// on the slot has not been answered yet.
	ErrRequestPending = errors.New("delegate: previous request still pending")

	// ErrUnknownJobKind is the result of a request with a job kind the
	// dispatcher does not handle.
	ErrUnknownJobKind = errors.New("delegate: unknown job kind")

	// ErrReentrant is returned by blocking operations called from the
	// dispatcher goroutine itself, e.g. from within WorkUnit.Perform.
	ErrReentrant = errors.New("delegate: cannot wait on the dispatcher from within the dispatcher")

	// ErrClientClosed is returned by Client methods after Client.Close.
	ErrClientClosed = errors.New("delegate: client is closed")

	// ErrInvalidOption is wrapped by errors returned by New, for invalid
	// configuration.
	ErrInvalidOption = errors.New("delegate: invalid option")
)

// PanicError wraps a value recovered from a panic raised by
// [WorkUnit.Perform], on the dispatcher goroutine. It is returned to the
// client whose request triggered it. The dispatcher keeps running.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("delegate: work unit panicked: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
// If the panic Value is not an error (e.g., a string), returns nil.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
