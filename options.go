// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package delegate

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// serverOptions holds configuration options for Server creation.
type serverOptions struct {
	logger     *logiface.Logger[logiface.Event]
	limiter    *catrate.Limiter
	strategy   ScanStrategy
	spin       SpinPolicy
	idle       SpinPolicy
	maxClients int
	cpu        int
	metrics    bool
}

// Option configures a Server instance.
type Option interface {
	applyServer(*serverOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyServerFunc func(*serverOptions) error
}

func (o *optionImpl) applyServer(opts *serverOptions) error {
	return o.applyServerFunc(opts)
}

// WithScanStrategy selects the scan strategy of the dispatcher.
// Defaults to [ScanDirect].
func WithScanStrategy(strategy ScanStrategy) Option {
	return &optionImpl{func(opts *serverOptions) error {
		switch strategy {
		case ScanDirect, ScanPrefetchPaired:
		default:
			return fmt.Errorf(`%w: unknown scan strategy: %d`, ErrInvalidOption, int(strategy))
		}
		opts.strategy = strategy
		return nil
	}}
}

// WithSpinPolicy sets the policy used by clients created via
// [Server.NewClient] while waiting on a response, and by [Server.Unregister]
// while waiting on the merge. Defaults to [SpinYield].
func WithSpinPolicy(policy SpinPolicy) Option {
	return &optionImpl{func(opts *serverOptions) error {
		if err := policy.validate(); err != nil {
			return err
		}
		opts.spin = policy
		return nil
	}}
}

// WithIdlePolicy sets the policy the dispatcher follows between passes that
// found no pending request. Use [SpinPure] for the lowest latency, at the cost
// of a fully busy CPU. Defaults to [SpinYield].
func WithIdlePolicy(policy SpinPolicy) Option {
	return &optionImpl{func(opts *serverOptions) error {
		if err := policy.validate(); err != nil {
			return err
		}
		opts.idle = policy
		return nil
	}}
}

// WithMaxClients limits the number of registered slots, including those
// pending admission. Register fails with [ErrRosterFull] once reached.
// Zero (the default) means unlimited.
func WithMaxClients(n int) Option {
	return &optionImpl{func(opts *serverOptions) error {
		if n < 0 {
			return fmt.Errorf(`%w: negative max clients: %d`, ErrInvalidOption, n)
		}
		opts.maxClients = n
		return nil
	}}
}

// WithLogger sets the structured logger. A nil logger (the default) disables
// logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *serverOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithLogRateLimit sets the per-category rate limits applied to warnings
// raised by the dispatcher, e.g. for unknown job kinds, keyed by window.
// Rates must be valid per [catrate.NewLimiter]. A nil or empty map disables
// rate limiting. Defaults to [DefaultLogRates].
func WithLogRateLimit(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *serverOptions) error {
		if len(rates) == 0 {
			opts.limiter = nil
			return nil
		}
		limiter, err := newLimiter(rates)
		if err != nil {
			return err
		}
		opts.limiter = limiter
		return nil
	}}
}

// WithMetrics enables recording the service time of every job, exposed via
// [Server.Metrics]. This adds two clock reads and a mutex per job, so is
// disabled by default. Counters are always available.
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *serverOptions) error {
		opts.metrics = enabled
		return nil
	}}
}

// WithCPUAffinity pins the dispatcher's OS thread to the given CPU.
// Only supported on Linux. Negative (the default) disables pinning.
func WithCPUAffinity(cpu int) Option {
	return &optionImpl{func(opts *serverOptions) error {
		opts.cpu = cpu
		return nil
	}}
}

// resolveOptions applies Option instances to serverOptions.
func resolveOptions(opts []Option) (*serverOptions, error) {
	cfg := &serverOptions{
		limiter:  catrate.NewLimiter(DefaultLogRates()),
		strategy: ScanDirect,
		spin:     SpinYield,
		idle:     SpinYield,
		cpu:      -1,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyServer(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// DefaultLogRates returns the default rate limits for dispatcher warnings.
func DefaultLogRates() map[time.Duration]int {
	return map[time.Duration]int{
		time.Second: 1,
		time.Minute: 10,
	}
}

// newLimiter is catrate.NewLimiter, reporting invalid rates as an error.
func newLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	defer func() {
		if r := recover(); r != nil {
			limiter, err = nil, fmt.Errorf(`%w: %v`, ErrInvalidOption, r)
		}
	}()
	return catrate.NewLimiter(rates), nil
}
