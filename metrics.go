// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package delegate

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is a point-in-time snapshot of the server's counters.
//
// Thread Safety: counters are published by the dispatcher at least once per
// pass, so they may trail the true values by one pass.
type Metrics struct {
	// State is the lifecycle state at the time of the snapshot.
	State ServerState

	// Jobs is the number of requests serviced, including failed ones.
	Jobs uint64

	// Passes is the number of completed scan passes.
	Passes uint64

	// Merges is the number of merge phases applied.
	Merges uint64

	// Clients is the number of distinct slots in the roster, as of the last
	// merge.
	Clients int

	// UnknownKinds is the number of requests rejected for their job kind.
	UnknownKinds uint64

	// Panics is the number of requests whose work unit panicked.
	Panics uint64

	// Latency is the service time distribution, only populated when the
	// server was created WithMetrics(true).
	Latency LatencySnapshot
}

// LatencySnapshot summarizes the most recent service time samples.
type LatencySnapshot struct {
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	Max   time.Duration
	Mean  time.Duration
	Count int
}

// latencySampleSize is the number of service time samples retained.
const latencySampleSize = 1000

// latencyRecorder keeps a rolling buffer of service times, written by the
// dispatcher, and read by Server.Metrics.
type latencyRecorder struct {
	mu      sync.Mutex
	idx     int
	count   int
	sum     time.Duration
	samples [latencySampleSize]time.Duration
}

// Record records a latency sample.
func (l *latencyRecorder) Record(d time.Duration) {
	l.mu.Lock()
	if l.count >= latencySampleSize {
		l.sum -= l.samples[l.idx]
	} else {
		l.count++
	}
	l.samples[l.idx] = d
	l.sum += d
	l.idx++
	if l.idx >= latencySampleSize {
		l.idx = 0
	}
	l.mu.Unlock()
}

// Snapshot computes percentiles from the collected samples.
func (l *latencyRecorder) Snapshot() (s LatencySnapshot) {
	l.mu.Lock()
	count := l.count
	sorted := make([]time.Duration, count)
	copy(sorted, l.samples[:count])
	sum := l.sum
	l.mu.Unlock()

	if count == 0 {
		return s
	}

	slices.Sort(sorted)

	s.Count = count
	s.P50 = sorted[percentileIndex(count, 50)]
	s.P90 = sorted[percentileIndex(count, 90)]
	s.P99 = sorted[percentileIndex(count, 99)]
	s.Max = sorted[count-1]
	s.Mean = sum / time.Duration(count)
	return s
}

// percentileIndex computes the index for a given percentile (0-100).
func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}

// serverStats are the always-on counters. Each has exactly one writer, the
// dispatcher, which publishes with plain stores.
type serverStats struct { // betteralign:ignore
	_ [sizeOfCacheLine]byte //nolint:unused

	jobs    atomic.Uint64
	passes  atomic.Uint64
	merges  atomic.Uint64
	clients atomic.Int64
	unknown atomic.Uint64
	panics  atomic.Uint64

	_ [sizeOfCacheLine - 6*sizeOfAtomicUint64]byte //nolint:unused
}
