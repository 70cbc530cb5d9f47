// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package delegate

import (
	"sync/atomic"
)

// JobKind identifies the operation a request asks the dispatcher to perform.
type JobKind uint32

const (
	// JobPerform runs WorkUnit.Perform once. It is the only supported kind.
	JobPerform JobKind = 1
)

func (k JobKind) String() string {
	if k == JobPerform {
		return `perform`
	}
	return `unknown`
}

// job outcomes, stored in Slot.status before the response tick is published
const (
	statusOK uint32 = iota
	statusUnknownKind
	statusPanicked
)

// Slot is the per-client record used to exchange one request and one response
// with the dispatcher, without locking.
//
// Layout: the slot occupies exactly two cache lines. The first holds the
// fields written by the client, the second the fields written by the
// dispatcher, so the two writers never contend for the same line. The size is
// a multiple of the cache line, and slots are always allocated individually
// (never embedded), which the Go allocator places on a boundary of its size
// class.
//
// A Slot must only be used by one client goroutine at a time. The zero value
// is ready to use.
//
// Tick wrap-around: ticks are uint64, compared for inequality only, and each
// slot has at most one outstanding request, so a wrap (after 2^64 requests)
// would be harmless.
type Slot struct { // betteralign:ignore
	// --- client-written line ---

	// requestTick is bumped (release) by the client to publish a request
	requestTick atomic.Uint64
	// jobKind is stored before requestTick is bumped
	jobKind atomic.Uint32
	_       [4]byte //nolint:unused
	// owner is the server the slot is registered with, only touched by
	// Register and Unregister, never by the dispatcher
	owner atomic.Pointer[Server]
	_     [sizeOfCacheLine - 2*sizeOfAtomicUint64 - sizeOfAtomicPointer]byte //nolint:unused

	// --- dispatcher-written line ---

	// responseTick mirrors requestTick (release) once the job is complete
	responseTick atomic.Uint64
	// status is the outcome of the job for responseTick
	status atomic.Uint32
	// detached is set when the dispatcher permanently stops servicing the slot
	detached atomic.Bool
	// fault is the recovered panic value, when status is statusPanicked,
	// published by the responseTick store
	fault any
	_     [sizeOfCacheLine - sizeOfAtomicUint64 - sizeOfAtomicUint32 - sizeOfAtomicBool - sizeOfInterface]byte //nolint:unused
}

// NewSlot allocates a new, unregistered slot.
func NewSlot() *Slot {
	return new(Slot)
}

// Request publishes a new request of the given kind, returning the tick to
// pass to [Slot.Await]. The slot need not be registered yet: a request
// published before the dispatcher admits the slot is serviced on first
// contact.
//
// Only the goroutine owning the slot may call Request. It fails with
// [ErrRequestPending] if the previous request has not been answered, and with
// [ErrDetached] once the slot has been detached.
func (s *Slot) Request(kind JobKind) (uint64, error) {
	if s.detached.Load() {
		return 0, ErrDetached
	}
	// requestTick only has one writer (us), so this load can't race
	tick := s.requestTick.Load()
	if s.responseTick.Load() != tick {
		return 0, ErrRequestPending
	}
	s.jobKind.Store(uint32(kind))
	tick++
	s.requestTick.Store(tick)
	return tick, nil
}

// Await busy-waits, per the given policy, until the dispatcher has answered
// the request identified by tick, returning the outcome of the job. If the
// dispatcher detaches the slot first, it returns [ErrDetached] immediately.
//
// There is no cancellation: detachment is the only way out of the wait.
func (s *Slot) Await(tick uint64, policy SpinPolicy) error {
	sp := spinner{policy: policy}
	for {
		if s.responseTick.Load() == tick {
			return s.result()
		}
		if s.detached.Load() {
			// the response may have been published just prior to detaching
			if s.responseTick.Load() == tick {
				return s.result()
			}
			return ErrDetached
		}
		sp.pause()
	}
}

// Do is Request followed by Await.
func (s *Slot) Do(kind JobKind, policy SpinPolicy) error {
	tick, err := s.Request(kind)
	if err != nil {
		return err
	}
	return s.Await(tick, policy)
}

// RequestTick returns the tick of the most recent request.
func (s *Slot) RequestTick() uint64 {
	return s.requestTick.Load()
}

// ResponseTick returns the tick of the most recently answered request.
func (s *Slot) ResponseTick() uint64 {
	return s.responseTick.Load()
}

// Detached reports whether the dispatcher has permanently stopped servicing
// the slot.
func (s *Slot) Detached() bool {
	return s.detached.Load()
}

// Reset returns a slot to its zero state, e.g. to reuse a slot detached by a
// stopped server. It must not be called while the slot is registered.
func (s *Slot) Reset() error {
	if s.owner.Load() != nil {
		return ErrSlotRegistered
	}
	s.reset()
	return nil
}

func (s *Slot) reset() {
	s.requestTick.Store(0)
	s.jobKind.Store(0)
	s.responseTick.Store(0)
	s.status.Store(statusOK)
	s.detached.Store(false)
	s.fault = nil
}

// result interprets the status of the last response, and must only be called
// after observing the matching response tick.
func (s *Slot) result() error {
	switch s.status.Load() {
	case statusOK:
		return nil
	case statusUnknownKind:
		return ErrUnknownJobKind
	default:
		return &PanicError{Value: s.fault}
	}
}

// respond publishes the outcome of the job for tick. Dispatcher only.
func (s *Slot) respond(tick uint64, status uint32, fault any) {
	s.fault = fault
	s.status.Store(status)
	s.responseTick.Store(tick)
}
