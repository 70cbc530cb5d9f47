// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package delegate

import (
	"sync"
	"sync/atomic"
)

// roster is the dispatcher's private, authoritative list of live slots.
//
// Invariant: ticks[i] is the last request tick observed for slots[i]. Every
// reordering of slots is applied to ticks in the same operation.
//
// When paired, every live slot is present twice, at i and i+len/2, and the
// two ticks entries are kept identical.
//
// Thread Safety: NOT thread-safe, only the dispatcher goroutine may touch it.
type roster struct {
	slots  []*Slot
	ticks  []uint64
	paired bool
}

// live returns the number of distinct slots in the roster.
func (r *roster) live() int {
	if r.paired {
		return len(r.slots) / 2
	}
	return len(r.slots)
}

// unpair drops the duplicated half, if any.
func (r *roster) unpair() {
	if !r.paired {
		return
	}
	half := len(r.slots) / 2
	clear(r.slots[half:]) // no stale references past len
	r.slots = r.slots[:half]
	r.ticks = r.ticks[:half]
	r.paired = false
}

// pair duplicates the roster, such that slots[i] == slots[i+len/2].
func (r *roster) pair() {
	if r.paired {
		return
	}
	r.slots = append(r.slots, r.slots...)
	r.ticks = append(r.ticks, r.ticks...)
	r.paired = true
}

// add appends a slot, with the last observed tick set to its current response
// tick: zero for a fresh slot, and never a tick that was already answered.
// Must not be called while paired.
func (r *roster) add(s *Slot) {
	r.slots = append(r.slots, s)
	r.ticks = append(r.ticks, s.responseTick.Load())
}

// remove swap-removes the slot by identity, keeping ticks aligned, reporting
// whether it was found. Must not be called while paired.
func (r *roster) remove(s *Slot) bool {
	for i, v := range r.slots {
		if v != s {
			continue
		}
		last := len(r.slots) - 1
		r.slots[i] = r.slots[last]
		r.ticks[i] = r.ticks[last]
		r.slots[last] = nil
		r.slots = r.slots[:last]
		r.ticks = r.ticks[:last]
		return true
	}
	return false
}

// detachAll marks every slot as detached, and empties the roster.
func (r *roster) detachAll() int {
	r.unpair()
	n := len(r.slots)
	for _, s := range r.slots {
		s.detached.Store(true)
	}
	clear(r.slots)
	r.slots = r.slots[:0]
	r.ticks = r.ticks[:0]
	return n
}

// pendingChanges is the roster mutation channel, used by client goroutines to
// request membership changes, without ever blocking the dispatcher's scan.
//
// Invariant: a goroutine that observes changed at zero may assume the roster
// reflects every change requested before that observation. The dispatcher
// only resets changed while holding mu, after applying all changes.
type pendingChanges struct { // betteralign:ignore
	mu sync.Mutex

	toAdd    []*Slot
	toRemove []*Slot

	// reserved is the number of slots in the roster plus toAdd, minus
	// toRemove, used to enforce the max clients limit, and recomputed on
	// every merge
	reserved int

	// epoch is the number of merges applied, guarded by mu
	epoch uint64

	_ [sizeOfCacheLine]byte //nolint:unused

	// changed is bumped for every queued change, read (relaxed) by the
	// dispatcher once per iteration, and reset under mu
	changed atomic.Uint32

	// merged mirrors epoch, for unregister waiters
	merged atomic.Uint64

	_ [sizeOfCacheLine - sizeOfAtomicUint32 - 4 - sizeOfAtomicUint64]byte //nolint:unused
}

// queueAdd records a pending registration. CALLER MUST HOLD mu.
func (p *pendingChanges) queueAdd(s *Slot) {
	p.toAdd = append(p.toAdd, s)
	p.reserved++
	p.changed.Add(1)
}

// queueRemove records a pending unregistration, returning the epoch that the
// merge applying it will complete. CALLER MUST HOLD mu.
func (p *pendingChanges) queueRemove(s *Slot) uint64 {
	p.toRemove = append(p.toRemove, s)
	p.reserved--
	p.changed.Add(1)
	return p.epoch + 1
}

// applied reports whether the merge for epoch has completed, or nothing is
// pending at all.
func (p *pendingChanges) applied(epoch uint64) bool {
	return p.changed.Load() == 0 || p.merged.Load() >= epoch
}

// mergeResult summarizes a merge, for logging.
type mergeResult struct {
	added     int
	removed   int
	cancelled int
	live      int
	epoch     uint64
}

// merge applies all pending changes to r, in the order: drop duplication,
// removals, additions, clear pending, restore duplication, reset changed.
// Removed slots are marked detached.
// CALLER MUST HOLD mu, the mutex acquisition is what publishes the reset of
// changed to waiters.
func (p *pendingChanges) merge(r *roster, paired bool) (res mergeResult) {
	r.unpair()

	for i, s := range p.toRemove {
		// the owner clears this once its unregister completes, any request
		// made in the meantime observes detached rather than hanging
		s.detached.Store(true)
		if r.remove(s) {
			res.removed++
		} else if p.cancelAdd(s) {
			// unregistered before it was ever admitted
			res.cancelled++
		}
		p.toRemove[i] = nil
	}
	p.toRemove = p.toRemove[:0]

	for _, s := range p.toAdd {
		r.add(s)
	}
	res.added = len(p.toAdd)
	clear(p.toAdd)
	p.toAdd = p.toAdd[:0]

	if paired {
		r.pair()
	}

	p.epoch++
	res.epoch = p.epoch
	res.live = r.live()
	p.reserved = res.live
	p.merged.Store(p.epoch)
	p.changed.Store(0)

	return res
}

// cancelAdd swap-removes s from toAdd, reporting whether it was found.
func (p *pendingChanges) cancelAdd(s *Slot) bool {
	for i, v := range p.toAdd {
		if v != s {
			continue
		}
		last := len(p.toAdd) - 1
		p.toAdd[i] = p.toAdd[last]
		p.toAdd[last] = nil
		p.toAdd = p.toAdd[:last]
		return true
	}
	return false
}
