// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package workload provides the synthetic work unit used to exercise the
// delegation server, and its calibration.
package workload

import (
	"math"
	"time"

	"github.com/joeycumines/go-delegate"
)

// PerRoundTarget is the approximate duration of one round of work, between
// checks of the stop flag.
const PerRoundTarget = 10 * time.Microsecond

// Work is a CPU-bound work unit with a mutable accumulator. It is NOT safe for
// concurrent use, which is the point: callers must serialize Perform.
type Work struct {
	difficulty uint64
	sum        uint64
}

var _ delegate.WorkUnit = (*Work)(nil)

// New returns a work unit of the given difficulty, the number of terms summed
// by each Perform.
func New(difficulty uint64) *Work {
	return &Work{difficulty: difficulty}
}

// Perform adds the sum of i*i, for i in [0, difficulty), to the accumulator.
// Arithmetic wraps on overflow.
func (w *Work) Perform() {
	w.sum += UnitResult(w.difficulty)
}

// Sum returns the accumulator.
func (w *Work) Sum() uint64 {
	return w.sum
}

// Difficulty returns the difficulty the work unit was created with.
func (w *Work) Difficulty() uint64 {
	return w.difficulty
}

// UnitResult returns the amount a single Perform, at the given difficulty,
// adds to the accumulator.
func UnitResult(difficulty uint64) uint64 {
	var s uint64
	for i := uint64(0); i < difficulty; i++ {
		s += i * i
	}
	return s
}

// Calibration is the outcome of Calibrate.
type Calibration struct {
	// Repeats is the number of units run in the final round.
	Repeats int
	// Elapsed is the duration of the final round.
	Elapsed time.Duration
}

// Calibrate measures the time taken by one unit of work, running rounds of
// units, starting at 100 and tripling each round, until a round takes longer
// than minElapsed.
func Calibrate(unit delegate.WorkUnit, minElapsed time.Duration) Calibration {
	repeats := 100
	for {
		start := time.Now()
		for i := 0; i < repeats; i++ {
			unit.Perform()
		}
		elapsed := time.Since(start)
		if elapsed > minElapsed {
			return Calibration{Repeats: repeats, Elapsed: elapsed}
		}
		repeats *= 3
	}
}

// Nanos returns the time taken by one unit, in nanoseconds.
func (c Calibration) Nanos() float64 {
	if c.Repeats <= 0 {
		return 0
	}
	return float64(c.Elapsed.Nanoseconds()) / float64(c.Repeats)
}

// PerUnit returns the time taken by one unit, truncated to a whole
// nanosecond.
func (c Calibration) PerUnit() time.Duration {
	return time.Duration(c.Nanos())
}

// PerRound returns the number of units per round, see [PerRound].
func (c Calibration) PerRound() int {
	return perRound(c.Nanos())
}

// PerRound returns the number of units that take approximately
// [PerRoundTarget], given the time taken by one unit, and at least 1.
func PerRound(workTime time.Duration) int {
	return perRound(float64(workTime.Nanoseconds()))
}

func perRound(nanos float64) int {
	target := float64(PerRoundTarget.Nanoseconds())
	if nanos <= 0 {
		return int(target)
	}
	n := math.Ceil(target / nanos)
	if n < 1 {
		return 1
	}
	return int(n)
}
