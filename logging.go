// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package delegate

import (
	"time"

	"github.com/joeycumines/logiface"
)

// warning categories, for rate limiting
type warnCategory struct {
	kind   string
	detail uint32
}

// limited returns b, or nil if the category is rate limited.
// Callers must still call Log (a nil builder is a no-op).
func (x *Server) limited(b *logiface.Builder[logiface.Event], kind string, detail uint32) *logiface.Builder[logiface.Event] {
	if !b.Enabled() {
		return b
	}
	next, ok := x.limiter.Allow(warnCategory{kind, detail})
	if !ok {
		b.Release()
		return nil
	}
	if next != (time.Time{}) {
		// the next event in this category will be suppressed, until next
		b = b.Time(`suppressed_until`, next)
	}
	return b
}

// logFault reports an abnormal job outcome.
func (x *Server) logFault(kind JobKind, status uint32, fault any) {
	switch status {
	case statusUnknownKind:
		x.limited(x.logger.Warning(), `unknown_kind`, uint32(kind)).
			Uint64(`kind`, uint64(kind)).
			Log(`delegate: unknown job kind`)
	case statusPanicked:
		b := x.limited(x.logger.Err(), `panic`, uint32(kind))
		if err, ok := fault.(error); ok {
			b = b.Err(err)
		} else {
			b = b.Interface(`panic`, fault)
		}
		b.Str(`kind`, kind.String()).
			Log(`delegate: work unit panicked`)
	}
}

func (x *Server) logMerge(res mergeResult) {
	x.logger.Debug().
		Uint64(`epoch`, res.epoch).
		Int(`added`, res.added).
		Int(`removed`, res.removed).
		Int(`cancelled`, res.cancelled).
		Int(`live`, res.live).
		Log(`delegate: roster merged`)
}

func (x *Server) logSlowUnregister(s *Slot, waited time.Duration) {
	x.limited(x.logger.Warning(), `slow_unregister`, 0).
		Dur(`waited`, waited).
		Uint64(`request_tick`, s.RequestTick()).
		Uint64(`response_tick`, s.ResponseTick()).
		Log(`delegate: unregister still waiting on the dispatcher`)
}
