// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package delegate

import (
	"sync/atomic"
)

// ServerState represents the lifecycle state of a Server.
//
// State Machine:
//
//	StateRunning (0) → StateTerminating (1)    [Stop()]
//	StateTerminating (1) → StateTerminated (2) [dispatcher exit]
//	StateTerminated (2) → (terminal)
//
// The dispatcher is started by New, and is never restarted.
type ServerState uint32

const (
	// StateRunning indicates the dispatcher is scanning its roster.
	StateRunning ServerState = iota
	// StateTerminating indicates Stop has been called, but the dispatcher has
	// not yet detached its clients.
	StateTerminating
	// StateTerminated indicates the dispatcher has detached all clients and
	// exited.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s ServerState) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state machine with cache-line padding, read once
// per dispatcher iteration.
type fastState struct { // betteralign:ignore
	_ [sizeOfCacheLine]byte                      // Cache line padding (before value) //nolint:unused
	v atomic.Uint32                              // State value
	_ [sizeOfCacheLine - sizeOfAtomicUint32]byte // Pad to complete cache line //nolint:unused
}

// Load returns the current state atomically.
func (s *fastState) Load() ServerState {
	return ServerState(s.v.Load())
}

// Store atomically stores a new state.
// PERFORMANCE: No transition validation, only for the terminal state.
func (s *fastState) Store(state ServerState) {
	s.v.Store(uint32(state))
}

// TryTransition attempts to atomically transition from one state to another.
// Returns true if the transition was successful.
func (s *fastState) TryTransition(from, to ServerState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
