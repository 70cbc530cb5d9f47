// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/joeycumines/go-delegate"
	"github.com/joeycumines/go-delegate/internal/workload"
	"github.com/joeycumines/logiface"
)

// Config configures a Suite run.
type Config struct {
	// Logger is used for progress, and passed to each server.
	Logger *logiface.Logger[logiface.Event]

	// ServerOptions are applied to each server, before the scan strategy.
	ServerOptions []delegate.Option

	// Strategies are run in order, each with a fresh server.
	// Defaults to [delegate.ScanDirect].
	Strategies []delegate.ScanStrategy

	// Difficulty is passed to workload.New.
	Difficulty uint64

	// TestTime is the duration of each run.
	TestTime time.Duration

	// CalibrationTime is the minimum duration of the final calibration round.
	// Defaults to 1s.
	CalibrationTime time.Duration

	// Threads is the maximum number of goroutines, each of the mutex and
	// delegated runs is repeated for 1 to Threads goroutines.
	Threads int
}

// Reporter receives the progress of a Suite.
type Reporter interface {
	Start(cfg Config)
	Calibrated(c workload.Calibration)
	Section(title string)
	Result(r Result)
}

// Suite runs the full comparison: calibration, a single unlocked goroutine,
// the mutex runs, then the delegated runs for each strategy. It returns the
// final accumulator of the shared work unit.
func Suite(ctx context.Context, cfg Config, reporter Reporter) (uint64, error) {
	if cfg.Threads < 1 {
		return 0, fmt.Errorf(`bench: invalid threads: %d`, cfg.Threads)
	}
	if cfg.TestTime <= 0 {
		return 0, fmt.Errorf(`bench: invalid test time: %s`, cfg.TestTime)
	}
	if cfg.CalibrationTime <= 0 {
		cfg.CalibrationTime = time.Second
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = []delegate.ScanStrategy{delegate.ScanDirect}
	}

	reporter.Start(cfg)

	work := workload.New(cfg.Difficulty)

	reporter.Section(`Measuring a single workload...`)
	cal := workload.Calibrate(work, cfg.CalibrationTime)
	reporter.Calibrated(cal)
	perRound := cal.PerRound()

	cfg.Logger.Debug().
		Int(`repeats`, cal.Repeats).
		Dur(`elapsed`, cal.Elapsed).
		Int(`per_round`, perRound).
		Log(`bench: calibrated`)

	reporter.Section(`Running in a single thread without any locking...`)
	reporter.Result(RunSingle(ctx, work, perRound, cfg.TestTime))
	if err := ctx.Err(); err != nil {
		return work.Sum(), err
	}

	reporter.Section(`Using multiple threads and a sync.Mutex...`)
	for j := 1; j <= cfg.Threads; j++ {
		reporter.Result(RunMutex(ctx, work, perRound, j, cfg.TestTime))
		if err := ctx.Err(); err != nil {
			return work.Sum(), err
		}
	}

	for _, strategy := range cfg.Strategies {
		if err := runDelegatedSection(ctx, cfg, reporter, work, perRound, strategy); err != nil {
			return work.Sum(), err
		}
	}

	return work.Sum(), nil
}

func runDelegatedSection(ctx context.Context, cfg Config, reporter Reporter, work *workload.Work, perRound int, strategy delegate.ScanStrategy) (err error) {
	opts := make([]delegate.Option, 0, len(cfg.ServerOptions)+2)
	opts = append(opts, delegate.WithLogger(cfg.Logger))
	opts = append(opts, cfg.ServerOptions...)
	opts = append(opts, delegate.WithScanStrategy(strategy))

	srv, err := delegate.New(work, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, srv.Close())
	}()

	reporter.Section(fmt.Sprintf(`Running in a single thread with delegation (%s)...`, strategy))
	for j := 1; j <= cfg.Threads; j++ {
		res, err := RunDelegated(ctx, srv, perRound, j, cfg.TestTime)
		res.Name = `delegated/` + strategy.String()
		reporter.Result(res)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	m := srv.Metrics()
	cfg.Logger.Info().
		Str(`strategy`, strategy.String()).
		Uint64(`jobs`, m.Jobs).
		Uint64(`passes`, m.Passes).
		Uint64(`merges`, m.Merges).
		Log(`bench: delegated runs complete`)

	return nil
}

// TextReporter writes a human-readable report.
type TextReporter struct {
	W io.Writer
}

var _ Reporter = (*TextReporter)(nil)

func (x *TextReporter) Start(cfg Config) {
	fmt.Fprintf(x.W, "Difficulty: %d\n", cfg.Difficulty)
	fmt.Fprintf(x.W, "Test time : %g\n", cfg.TestTime.Seconds())
	fmt.Fprintf(x.W, "Maximal number of threads: %d\n\n", cfg.Threads)
}

func (x *TextReporter) Calibrated(c workload.Calibration) {
	fmt.Fprintf(x.W, "Work time for one unit of work: %g ns\n\n", math.Floor(c.Nanos()))
}

func (x *TextReporter) Section(title string) {
	fmt.Fprintln(x.W, title)
}

func (x *TextReporter) Result(r Result) {
	if r.Name != `single` {
		fmt.Fprintf(x.W, "Using %d threads:\n", r.Threads())
	}
	fmt.Fprintf(x.W, "  time=%gs %s iterations, time per iteration: %g ns\n",
		r.Elapsed.Seconds(), FormatCount(r.Total()), r.NanosPerIteration())
	if r.Name != `single` {
		fmt.Fprint(x.W, "  thread counts:")
		for _, c := range r.Counts {
			fmt.Fprint(x.W, " ", FormatCount(c))
		}
		fmt.Fprintln(x.W)
	}
	fmt.Fprintln(x.W)
}
