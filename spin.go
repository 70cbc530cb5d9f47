// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package delegate

import (
	"fmt"
	"runtime"
	"time"
)

// SpinPolicy configures how a busy-wait backs off. It is used by clients
// waiting on a response ([Slot.Await]), by [Server.Unregister] waiting on the
// merge phase, and by the dispatcher when a pass found nothing to do.
//
// A wait proceeds through up to three phases: Spin busy iterations, then Yield
// iterations calling [runtime.Gosched], then sleeping for Sleep per iteration.
//
// Pure spinning gives the lowest latency, but wastes a whole CPU while
// waiting, which hurts badly once there are more spinning goroutines than
// CPUs.
type SpinPolicy struct {
	// Spin is the number of busy iterations before backing off.
	// Negative spins forever (the other fields are ignored).
	Spin int

	// Yield is the number of iterations calling runtime.Gosched, after the
	// Spin phase, before sleeping. Negative yields forever.
	Yield int

	// Sleep is the per-iteration sleep, once Spin and Yield are exhausted.
	// If zero, the final phase yields instead.
	Sleep time.Duration
}

var (
	// SpinPure busy-waits without ever backing off.
	SpinPure = SpinPolicy{Spin: -1}

	// SpinYield busy-waits briefly, then yields the processor on every
	// iteration. It is the default for both clients and the dispatcher.
	SpinYield = SpinPolicy{Spin: 128, Yield: -1}

	// SpinBackoff busy-waits, yields, then sleeps, suitable for heavily
	// oversubscribed processes.
	SpinBackoff = SpinPolicy{Spin: 128, Yield: 1024, Sleep: 50 * time.Microsecond}
)

func (p SpinPolicy) validate() error {
	if p.Sleep < 0 {
		return fmt.Errorf(`%w: negative spin policy sleep: %s`, ErrInvalidOption, p.Sleep)
	}
	return nil
}

func (p SpinPolicy) String() string {
	switch p {
	case SpinPure:
		return `pure`
	case SpinYield:
		return `yield`
	case SpinBackoff:
		return `backoff`
	default:
		return fmt.Sprintf(`spin=%d,yield=%d,sleep=%s`, p.Spin, p.Yield, p.Sleep)
	}
}

// ParseSpinPolicy resolves the name of one of the preset policies, as
// returned by [SpinPolicy.String].
func ParseSpinPolicy(s string) (SpinPolicy, error) {
	switch s {
	case `pure`:
		return SpinPure, nil
	case `yield`:
		return SpinYield, nil
	case `backoff`:
		return SpinBackoff, nil
	default:
		return SpinPolicy{}, fmt.Errorf(`%w: unknown spin policy: %q`, ErrInvalidOption, s)
	}
}

// spinner tracks the progress of a single wait through a SpinPolicy.
type spinner struct {
	policy SpinPolicy
	n      int
}

// pause performs one iteration of the wait.
func (x *spinner) pause() {
	p := &x.policy
	if p.Spin < 0 {
		return
	}
	n := x.n
	if n < p.Spin {
		x.n++
		return
	}
	if p.Yield < 0 || n < p.Spin+p.Yield || p.Sleep == 0 {
		if p.Yield >= 0 {
			x.n++
		}
		runtime.Gosched()
		return
	}
	time.Sleep(p.Sleep)
}

// reset restarts the wait from the Spin phase.
func (x *spinner) reset() {
	x.n = 0
}
