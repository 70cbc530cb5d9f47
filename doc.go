// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package delegate implements a delegation dispatch server: a single
// dedicated goroutine (locked to its own OS thread) performs all work on a
// shared, non-thread-safe [WorkUnit], on behalf of any number of client
// goroutines.
//
// It replaces a mutex-protected critical section with lock-free, per-client
// signaling slots. Each client owns one [Slot], publishes a request by bumping
// a tick, and busy-waits for the dispatcher to publish the matching response
// tick. The dispatcher scans its roster of slots in a tight loop, and is the
// only goroutine that ever calls [WorkUnit.Perform].
//
// # Architecture
//
// A [Server] owns:
//   - the roster: the dispatcher's private, ordered list of live slots, plus an
//     index-aligned list of the last observed request tick per slot
//   - the pending changes: a mutex-guarded pair of to-add and to-remove lists,
//     plus a change counter, merged into the roster by the dispatcher
//
// Each loop iteration has three phases: scan, merge (only if the change
// counter is non-zero), and the shutdown check. The mutex is only taken in the
// merge phase, never on the per-request path.
//
// Two scan strategies are available, see [ScanStrategy]:
//   - [ScanDirect] visits every roster entry once per pass
//   - [ScanPrefetchPaired] keeps every live slot in the roster twice, at
//     position i and i+n/2, and loads the duplicate early, so the second visit
//     in the same pass hits a warm cache line
//
// # Registration
//
// [Server.Register] is non-blocking; the slot is serviced from the next merge
// phase onward. [Server.Unregister] is a two-phase handshake: it queues the
// removal, then waits until the dispatcher has merged it. Once it returns, the
// dispatcher holds no reference to the slot, and the slot may be reused.
//
// [Server.NewClient] wraps this in a [Client] handle, backed by a pool of
// slots. [Client.Close] is the only way a pooled slot is retired.
//
// # Shutdown
//
// [Server.Stop] signals the dispatcher, which marks every slot it still knows
// about as detached and exits. A client waiting on a response observes the
// detached flag and fails with [ErrDetached], instead of hanging.
//
// # Usage
//
//	srv, err := delegate.New(work, delegate.WithScanStrategy(delegate.ScanPrefetchPaired))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Close()
//
//	client, err := srv.NewClient()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close(context.Background())
//
//	for i := 0; i < 1000; i++ {
//	    if err := client.Perform(); err != nil {
//	        log.Fatal(err)
//	    }
//	}
package delegate
