// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package delegate

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// slowUnregister is how long Unregister waits on a merge before warning, e.g.
// if a work unit is blocking the dispatcher.
const slowUnregister = time.Second

// WorkUnit is the operation performed by the dispatcher, on behalf of its
// clients. Perform is only ever called from the dispatcher goroutine, so it
// may mutate state without any synchronization, provided nothing else does.
//
// Perform must not call blocking methods of the Server that runs it.
type WorkUnit interface {
	Perform()
}

// WorkUnitFunc adapts a function to a WorkUnit.
type WorkUnitFunc func()

// Perform calls f.
func (f WorkUnitFunc) Perform() { f() }

// Server is a delegation server, running a single dispatcher goroutine which
// performs the work unit on behalf of any number of registered clients.
//
// See the package documentation for the protocol. All methods are safe for
// concurrent use.
type Server struct { // betteralign:ignore
	_ [0]func() // not comparable, nor copyable

	work    WorkUnit
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
	latency *latencyRecorder
	done    chan struct{}

	strategy   ScanStrategy
	spin       SpinPolicy
	idle       SpinPolicy
	maxClients int
	cpu        int

	// dispatcherGID is the goroutine ID of the dispatcher, for reentrancy
	// detection
	dispatcherGID atomic.Uint64

	state fastState

	pending pendingChanges

	stats serverStats

	// roster is only accessed by the dispatcher, and (after it stops
	// scanning) the shutdown phase it runs
	roster roster

	// sink keeps the early loads of scanPaired alive
	sink uintptr
}

// New creates a new Server, and starts its dispatcher goroutine, which runs
// until Stop, Shutdown or Close is called.
//
// The work unit must not be nil. New returns an error wrapping
// [ErrInvalidOption] for invalid options, including a [WithCPUAffinity] cpu
// the dispatcher could not be pinned to.
func New(work WorkUnit, opts ...Option) (*Server, error) {
	if work == nil {
		panic(`delegate: nil work unit`)
	}

	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	x := &Server{
		work:       work,
		logger:     cfg.logger,
		limiter:    cfg.limiter,
		done:       make(chan struct{}),
		strategy:   cfg.strategy,
		spin:       cfg.spin,
		idle:       cfg.idle,
		maxClients: cfg.maxClients,
		cpu:        cfg.cpu,
	}
	if cfg.metrics {
		x.latency = new(latencyRecorder)
	}

	started := make(chan error, 1)
	go x.run(started)
	if err := <-started; err != nil {
		<-x.done
		return nil, err
	}

	return x, nil
}

// run is the dispatcher goroutine.
func (x *Server) run(started chan<- error) {
	defer close(x.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if x.cpu >= 0 {
		if err := setAffinity(x.cpu); err != nil {
			x.state.Store(StateTerminated)
			started <- err
			return
		}
	}

	x.dispatcherGID.Store(getGoroutineID())
	defer x.dispatcherGID.Store(0)

	started <- nil

	x.logger.Info().
		Str(`strategy`, x.strategy.String()).
		Str(`idle`, x.idle.String()).
		Int(`cpu`, x.cpu).
		Log(`delegate: dispatcher started`)

	scan, paired := x.scanDirect, x.strategy.paired()
	if paired {
		scan = x.scanPaired
	}

	var (
		idle   = spinner{policy: x.idle}
		jobs   uint64
		passes uint64
	)

	for {
		n := scan()

		passes++
		x.stats.passes.Store(passes)
		if n != 0 {
			jobs += uint64(n)
			x.stats.jobs.Store(jobs)
		}

		if x.pending.changed.Load() != 0 {
			x.merge(paired)
		}

		if x.state.Load() != StateRunning {
			x.terminate()
			return
		}

		if n != 0 {
			idle.reset()
		} else {
			idle.pause()
		}
	}
}

// service performs the job requested on s, and publishes the response.
func (x *Server) service(s *Slot, tick uint64) {
	kind := JobKind(s.jobKind.Load())

	var start time.Time
	if x.latency != nil {
		start = time.Now()
	}

	status, fault := x.execute(kind)

	if x.latency != nil {
		x.latency.Record(time.Since(start))
	}

	s.respond(tick, status, fault)

	if status != statusOK {
		x.fault(kind, status, fault)
	}
}

// execute runs a single job, recovering any panic raised by the work unit.
func (x *Server) execute(kind JobKind) (status uint32, fault any) {
	if kind != JobPerform {
		return statusUnknownKind, nil
	}
	defer func() {
		if r := recover(); r != nil {
			status, fault = statusPanicked, r
		}
	}()
	x.work.Perform()
	return statusOK, nil
}

// fault accounts for an abnormal job outcome, off the fast path.
func (x *Server) fault(kind JobKind, status uint32, fault any) {
	switch status {
	case statusUnknownKind:
		x.stats.unknown.Store(x.stats.unknown.Load() + 1)
	case statusPanicked:
		x.stats.panics.Store(x.stats.panics.Load() + 1)
	}
	x.logFault(kind, status, fault)
}

// merge applies pending roster changes. Dispatcher only.
func (x *Server) merge(paired bool) {
	x.pending.mu.Lock()
	res := x.pending.merge(&x.roster, paired)
	x.pending.mu.Unlock()

	x.stats.merges.Store(res.epoch)
	x.stats.clients.Store(int64(res.live))
	x.logMerge(res)
}

// terminate runs the shutdown phase: it applies any pending changes, so that
// no registration is lost, then detaches every slot. Dispatcher only.
func (x *Server) terminate() {
	x.logger.Debug().Log(`delegate: dispatcher stopping`)

	x.pending.mu.Lock()
	res := x.pending.merge(&x.roster, false)
	detached := x.roster.detachAll()
	x.pending.reserved = 0
	// under mu, so Register and Unregister observe a consistent roster
	x.state.Store(StateTerminated)
	x.pending.mu.Unlock()

	x.stats.merges.Store(res.epoch)
	x.stats.clients.Store(0)

	x.logger.Info().
		Int(`detached`, detached).
		Uint64(`jobs`, x.stats.jobs.Load()).
		Log(`delegate: dispatcher stopped`)
}

// Register queues a slot for admission to the roster. It returns without
// waiting for the dispatcher: the slot may be used immediately, and requests
// made before admission are serviced on first contact.
//
// A slot may only be registered with one server at a time. Register fails
// with [ErrServerStopped] once the server is stopping, [ErrSlotRegistered] if
// the slot is already registered, [ErrSlotDetached] if the slot must first be
// reset, and [ErrRosterFull] if the server's client limit is reached.
func (x *Server) Register(s *Slot) error {
	if s == nil {
		panic(`delegate: nil slot`)
	}

	if s.detached.Load() {
		return ErrSlotDetached
	}

	if !s.owner.CompareAndSwap(nil, x) {
		return ErrSlotRegistered
	}

	x.pending.mu.Lock()
	defer x.pending.mu.Unlock()

	switch {
	case x.state.Load() != StateRunning:
		s.owner.Store(nil)
		return ErrServerStopped
	case x.maxClients > 0 && x.pending.reserved >= x.maxClients:
		s.owner.Store(nil)
		return ErrRosterFull
	}

	x.pending.queueAdd(s)

	return nil
}

// Unregister removes a slot from the roster, blocking until the dispatcher has
// applied the removal, after which the dispatcher holds no reference to the
// slot, and its memory may be reused. The slot must not have a request in
// flight.
//
// Once the removal is queued, the slot must not make further requests: any
// that are not serviced before the merge fail with [ErrDetached]. The slot is
// reattached when Unregister succeeds.
//
// If the server has already stopped, Unregister returns immediately, and the
// slot may be left detached. If ctx is done first, ctx.Err() is returned, the
// removal stays queued, and the slot must not be reused until a subsequent
// call to Unregister succeeds.
//
// Calling Unregister from within the work unit returns [ErrReentrant].
func (x *Server) Unregister(ctx context.Context, s *Slot) error {
	if s == nil {
		panic(`delegate: nil slot`)
	}

	if x.isDispatcher() {
		return ErrReentrant
	}

	if s.owner.Load() != x {
		return ErrSlotNotRegistered
	}

	x.pending.mu.Lock()
	if x.state.Load() == StateTerminated {
		x.pending.mu.Unlock()
		s.owner.Store(nil)
		return nil
	}
	epoch := x.pending.queueRemove(s)
	x.pending.mu.Unlock()

	var (
		sp     = spinner{policy: x.spin}
		start  time.Time
		warned bool
	)
	for i := 0; !x.pending.applied(epoch); i++ {
		if x.state.Load() == StateTerminated {
			s.owner.Store(nil)
			return nil
		}
		if i&63 == 63 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if start.IsZero() {
				start = time.Now()
			} else if !warned {
				if waited := time.Since(start); waited > slowUnregister {
					warned = true
					x.logSlowUnregister(s, waited)
				}
			}
		}
		sp.pause()
	}

	// set by the merge that removed it, the dispatcher no longer holds s
	s.detached.Store(false)
	s.owner.Store(nil)
	return nil
}

// Stop signals the dispatcher to stop, without waiting. The dispatcher
// finishes its current pass, applies pending changes, then detaches every
// client. Safe to call multiple times.
func (x *Server) Stop() {
	x.state.TryTransition(StateRunning, StateTerminating)
}

// Done returns a channel closed once the dispatcher has exited.
func (x *Server) Done() <-chan struct{} {
	return x.done
}

// Wait blocks until the dispatcher has exited.
func (x *Server) Wait() {
	<-x.done
}

// Shutdown stops the server, and waits for the dispatcher to exit, or ctx to
// be done. It returns [ErrReentrant] if called from within the work unit.
func (x *Server) Shutdown(ctx context.Context) error {
	if x.isDispatcher() {
		return ErrReentrant
	}
	x.Stop()
	select {
	case <-x.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the server, and waits for the dispatcher to exit.
func (x *Server) Close() error {
	return x.Shutdown(context.Background())
}

// State returns the current lifecycle state.
func (x *Server) State() ServerState {
	return x.state.Load()
}

// Metrics returns a snapshot of the server's counters.
func (x *Server) Metrics() Metrics {
	m := Metrics{
		State:        x.state.Load(),
		Jobs:         x.stats.jobs.Load(),
		Passes:       x.stats.passes.Load(),
		Merges:       x.stats.merges.Load(),
		Clients:      int(x.stats.clients.Load()),
		UnknownKinds: x.stats.unknown.Load(),
		Panics:       x.stats.panics.Load(),
	}
	if x.latency != nil {
		m.Latency = x.latency.Snapshot()
	}
	return m
}

// isDispatcher reports whether the caller is the dispatcher goroutine.
func (x *Server) isDispatcher() bool {
	id := x.dispatcherGID.Load()
	return id != 0 && id == getGoroutineID()
}

// getGoroutineID returns the current goroutine's ID, parsed from the header of
// its stack trace ("goroutine N [...").
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
