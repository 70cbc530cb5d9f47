// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package delegate

import (
	"fmt"
	"unsafe"
)

// ScanStrategy selects how the dispatcher visits its roster, during the scan
// phase. Both strategies share the merge and shutdown phases.
type ScanStrategy int

const (
	// ScanDirect visits each roster entry once per pass, in roster order.
	// A request that arrives mid-scan is serviced on the next pass.
	ScanDirect ScanStrategy = iota

	// ScanPrefetchPaired keeps every live slot in the roster twice, at
	// positions i and i+n/2, and sweeps all n positions per pass, so each
	// slot is polled twice per pass. The roster entries at i+n/2 are loaded
	// early, while visiting i, which touches only the roster arrays: the slot
	// itself is the one being visited at i. The last observed tick is shared
	// by both copies, so a request is never serviced twice, but one that
	// arrives mid-scan may be picked up by the second visit, within the same
	// pass.
	ScanPrefetchPaired
)

func (s ScanStrategy) String() string {
	switch s {
	case ScanDirect:
		return `direct`
	case ScanPrefetchPaired:
		return `prefetch-paired`
	default:
		return fmt.Sprintf(`ScanStrategy(%d)`, int(s))
	}
}

// ParseScanStrategy is the inverse of [ScanStrategy.String].
func ParseScanStrategy(s string) (ScanStrategy, error) {
	switch s {
	case `direct`:
		return ScanDirect, nil
	case `prefetch-paired`, `paired`:
		return ScanPrefetchPaired, nil
	default:
		return 0, fmt.Errorf(`%w: unknown scan strategy: %q`, ErrInvalidOption, s)
	}
}

func (s ScanStrategy) paired() bool {
	return s == ScanPrefetchPaired
}

// scanDirect performs one pass over the roster, returning the number of jobs
// serviced.
func (x *Server) scanDirect() (n int) {
	ticks := x.roster.ticks
	for i, s := range x.roster.slots {
		// acquire: pairs with the store in Slot.Request
		t := s.requestTick.Load()
		if t != ticks[i] {
			ticks[i] = t
			x.service(s, t)
			n++
		}
	}
	return n
}

// scanPaired performs one pass over a paired roster, returning the number of
// jobs serviced.
//
// Go has no prefetch intrinsic, and there is no way to prefetch slot memory
// here. The only early load is of the duplicate's roster entries (slots[j]
// and ticks[j]), folded into x.sink so it can't be eliminated. It does not
// touch the slot.
func (x *Server) scanPaired() (n int) {
	slots, ticks := x.roster.slots, x.roster.ticks
	half := len(slots) / 2
	sink := x.sink

	for i := 0; i < half; i++ {
		j := i + half
		sink ^= uintptr(unsafe.Pointer(slots[j])) ^ uintptr(ticks[j])

		s := slots[i]
		t := s.requestTick.Load()
		if t != ticks[i] {
			ticks[i] = t
			ticks[j] = t
			x.service(s, t)
			n++
		}
	}

	for i := half; i < len(slots); i++ {
		s := slots[i]
		t := s.requestTick.Load()
		if t != ticks[i] {
			ticks[i] = t
			ticks[i-half] = t
			x.service(s, t)
			n++
		}
	}

	x.sink = sink
	return n
}
