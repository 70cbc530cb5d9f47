// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Command delegatebench compares a mutex against a delegation server, for
// serializing access to a CPU-bound work unit.
//
// Usage:
//
//	delegatebench [flags] DIFFICULTY TESTTIME THREADS
//
// DIFFICULTY is the number of terms summed per unit of work, TESTTIME the
// number of seconds per run, and THREADS the maximum number of goroutines.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/joeycumines/go-delegate"
	"github.com/joeycumines/go-delegate/internal/bench"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	sum, err := bench.Suite(ctx, cfg, &bench.TextReporter{W: stdout})
	// keeps the accumulator observable
	fmt.Fprintln(io.Discard, sum)
	if err != nil {
		cfg.Logger.Err().Err(err).Log(`benchmark failed`)
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func parseArgs(args []string, stderr io.Writer) (cfg bench.Config, err error) {
	fs := flag.NewFlagSet(`delegatebench`, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), `Usage: delegatebench [flags] DIFFICULTY TESTTIME THREADS`)
		fs.PrintDefaults()
	}

	var (
		strategies = fs.String(`strategy`, `direct,prefetch-paired`, `comma-separated scan strategies: direct, prefetch-paired`)
		spin       = fs.String(`spin`, spinDefault, `client spin policy: pure, yield, backoff`)
		idle       = fs.String(`idle`, spinDefault, `dispatcher idle policy: pure, yield, backoff`)
		cpu        = fs.Int(`cpu`, -1, `pin the dispatcher to this cpu (linux only), negative to disable`)
		calibrate  = fs.Duration(`calibrate`, time.Second, `minimum duration of the calibration round`)
		logLevel   = fs.String(`log-level`, `warning`, `log level: disabled, err, warning, info, debug`)
		metrics    = fs.Bool(`metrics`, false, `record service time samples`)
	)

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if fs.NArg() != 3 {
		fs.Usage()
		return cfg, fmt.Errorf(`expected 3 arguments, got %d`, fs.NArg())
	}

	if cfg.Difficulty, err = strconv.ParseUint(fs.Arg(0), 10, 64); err != nil {
		return cfg, fmt.Errorf(`invalid DIFFICULTY: %w`, err)
	}
	seconds, err := strconv.ParseFloat(fs.Arg(1), 64)
	if err != nil || seconds <= 0 {
		return cfg, fmt.Errorf(`invalid TESTTIME: %q`, fs.Arg(1))
	}
	cfg.TestTime = time.Duration(seconds * float64(time.Second))
	if cfg.Threads, err = strconv.Atoi(fs.Arg(2)); err != nil || cfg.Threads < 1 {
		return cfg, fmt.Errorf(`invalid THREADS: %q`, fs.Arg(2))
	}
	cfg.CalibrationTime = *calibrate

	for _, s := range strings.Split(*strategies, `,`) {
		strategy, err := delegate.ParseScanStrategy(strings.TrimSpace(s))
		if err != nil {
			return cfg, err
		}
		cfg.Strategies = append(cfg.Strategies, strategy)
	}

	spinPolicy, err := delegate.ParseSpinPolicy(*spin)
	if err != nil {
		return cfg, err
	}
	idlePolicy, err := delegate.ParseSpinPolicy(*idle)
	if err != nil {
		return cfg, err
	}
	cfg.ServerOptions = []delegate.Option{
		delegate.WithSpinPolicy(spinPolicy),
		delegate.WithIdlePolicy(idlePolicy),
		delegate.WithCPUAffinity(*cpu),
		delegate.WithMetrics(*metrics),
	}

	level, err := parseLevel(*logLevel)
	if err != nil {
		return cfg, err
	}
	cfg.Logger = stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(stderr)),
		stumpy.L.WithLevel(level),
	).Logger()

	return cfg, nil
}

// spinDefault is the name of the default spin policy.
var spinDefault = delegate.SpinYield.String()

func parseLevel(s string) (logiface.Level, error) {
	for _, level := range [...]logiface.Level{
		logiface.LevelDisabled,
		logiface.LevelError,
		logiface.LevelWarning,
		logiface.LevelNotice,
		logiface.LevelInformational,
		logiface.LevelDebug,
	} {
		if level.String() == s {
			return level, nil
		}
	}
	return 0, fmt.Errorf(`invalid log level: %q`, s)
}
