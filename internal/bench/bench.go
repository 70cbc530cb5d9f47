// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package bench compares three ways of serializing access to a shared work
// unit: a single goroutine, a mutex, and a delegation server.
package bench

import (
	"context"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-delegate"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one timed run.
type Result struct {
	// Name identifies the run, e.g. "mutex".
	Name string
	// Elapsed is the wall time from starting the first goroutine, to the
	// last goroutine exiting.
	Elapsed time.Duration
	// Counts holds the number of units completed by each goroutine.
	Counts []uint64
}

// Threads returns the number of goroutines used.
func (r Result) Threads() int {
	return len(r.Counts)
}

// Total returns the number of units completed by all goroutines.
func (r Result) Total() (total uint64) {
	for _, c := range r.Counts {
		total += c
	}
	return total
}

// NanosPerIteration returns the elapsed time per completed unit, in whole
// nanoseconds (floored), or zero if no units completed.
func (r Result) NanosPerIteration() float64 {
	total := r.Total()
	if total == 0 {
		return 0
	}
	return math.Floor(float64(r.Elapsed.Nanoseconds()) / float64(total))
}

// RunSingle runs batches of perRound units on one goroutine, without any
// locking, until d elapses or ctx is done.
func RunSingle(ctx context.Context, unit delegate.WorkUnit, perRound int, d time.Duration) Result {
	perRound = max(perRound, 1)
	res := Result{Name: `single`, Counts: make([]uint64, 1)}
	var stop atomic.Bool
	var wg sync.WaitGroup
	start := time.Now()
	wg.Add(1)
	go func() {
		defer wg.Done()
		var c uint64
		for !stop.Load() {
			for i := 0; i < perRound; i++ {
				unit.Perform()
				c++
			}
		}
		res.Counts[0] = c
	}()
	sleep(ctx, d)
	stop.Store(true)
	wg.Wait()
	res.Elapsed = time.Since(start)
	return res
}

// RunMutex runs batches of perRound units on each of threads goroutines, with
// every unit guarded by a shared mutex, until d elapses or ctx is done.
func RunMutex(ctx context.Context, unit delegate.WorkUnit, perRound, threads int, d time.Duration) Result {
	perRound = max(perRound, 1)
	res := Result{Name: `mutex`, Counts: make([]uint64, threads)}
	var (
		mu   sync.Mutex
		stop atomic.Bool
		wg   sync.WaitGroup
	)
	start := time.Now()
	for i := range threads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var c uint64
			for !stop.Load() {
				for range perRound {
					mu.Lock()
					unit.Perform()
					mu.Unlock()
					c++
				}
			}
			res.Counts[i] = c
		}()
	}
	sleep(ctx, d)
	stop.Store(true)
	wg.Wait()
	res.Elapsed = time.Since(start)
	return res
}

// RunDelegated runs batches of perRound units on each of threads goroutines,
// each a client of srv, until d elapses or ctx is done. Each goroutine
// registers on start and unregisters on exit. The first client error aborts
// the run.
func RunDelegated(ctx context.Context, srv *delegate.Server, perRound, threads int, d time.Duration) (Result, error) {
	perRound = max(perRound, 1)
	res := Result{Name: `delegated`, Counts: make([]uint64, threads)}
	var stop atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for i := range threads {
		g.Go(func() (err error) {
			client, err := srv.NewClient()
			if err != nil {
				return err
			}
			defer func() {
				if e := client.Close(context.WithoutCancel(gctx)); err == nil {
					err = e
				}
			}()
			for !stop.Load() {
				for range perRound {
					if err := client.Perform(); err != nil {
						return err
					}
				}
			}
			res.Counts[i] = client.Completed()
			return nil
		})
	}
	sleep(gctx, d)
	stop.Store(true)
	err := g.Wait()
	res.Elapsed = time.Since(start)
	return res, err
}

// FormatCount formats u with thousands separators, e.g. 1,234,567.
func FormatCount(u uint64) string {
	s := strconv.FormatUint(u, 10)
	if len(s) <= 3 {
		return s
	}
	b := make([]byte, 0, len(s)+(len(s)-1)/3)
	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}
	b = append(b, s[:lead]...)
	for i := lead; i < len(s); i += 3 {
		b = append(b, ',')
		b = append(b, s[i:i+3]...)
	}
	return string(b)
}

// sleep waits for d to elapse, or ctx to be done.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
