package bench

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/joeycumines/go-delegate"
	"github.com/joeycumines/go-delegate/internal/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCount(t *testing.T) {
	for _, tc := range [...]struct {
		in   uint64
		want string
	}{
		{0, `0`},
		{7, `7`},
		{999, `999`},
		{1000, `1,000`},
		{12345, `12,345`},
		{123456, `123,456`},
		{1234567, `1,234,567`},
		{18446744073709551615, `18,446,744,073,709,551,615`},
	} {
		assert.Equal(t, tc.want, FormatCount(tc.in))
	}
}

func TestResult(t *testing.T) {
	r := Result{Elapsed: time.Second, Counts: []uint64{1, 2, 3}}
	assert.Equal(t, 3, r.Threads())
	assert.Equal(t, uint64(6), r.Total())
	assert.Equal(t, float64(166666666), r.NanosPerIteration())
	assert.Zero(t, Result{Elapsed: time.Second}.NanosPerIteration())
}

func TestRunSingle(t *testing.T) {
	w := workload.New(10)
	res := RunSingle(context.Background(), w, 7, 20*time.Millisecond)
	require.Equal(t, 1, res.Threads())
	require.NotZero(t, res.Total())
	assert.Zero(t, res.Total()%7, "whole rounds only")
	assert.Equal(t, res.Total()*workload.UnitResult(10), w.Sum())
	assert.GreaterOrEqual(t, res.Elapsed, 20*time.Millisecond)
}

func TestRunMutex(t *testing.T) {
	w := workload.New(10)
	res := RunMutex(context.Background(), w, 3, 4, 20*time.Millisecond)
	require.Equal(t, 4, res.Threads())
	assert.Equal(t, res.Total()*workload.UnitResult(10), w.Sum())
}

func TestRunDelegated(t *testing.T) {
	for _, strategy := range [...]delegate.ScanStrategy{delegate.ScanDirect, delegate.ScanPrefetchPaired} {
		t.Run(strategy.String(), func(t *testing.T) {
			w := workload.New(10)
			srv, err := delegate.New(w, delegate.WithScanStrategy(strategy))
			require.NoError(t, err)
			defer srv.Close()

			for threads := 1; threads <= 3; threads++ {
				before := w.Sum()
				res, err := RunDelegated(context.Background(), srv, 5, threads, 20*time.Millisecond)
				require.NoError(t, err)
				require.Equal(t, threads, res.Threads())
				require.Equal(t, before+res.Total()*workload.UnitResult(10), w.Sum())
			}

			require.NoError(t, srv.Close())
			m := srv.Metrics()
			assert.Zero(t, m.Clients)
			assert.Equal(t, delegate.StateTerminated, m.State)
		})
	}
}

func TestRunDelegated_serverStopped(t *testing.T) {
	srv, err := delegate.New(workload.New(1))
	require.NoError(t, err)
	require.NoError(t, srv.Close())
	_, err = RunDelegated(context.Background(), srv, 1, 2, time.Second)
	require.ErrorIs(t, err, delegate.ErrServerStopped)
}

func TestSuite(t *testing.T) {
	var buf bytes.Buffer
	sum, err := Suite(context.Background(), Config{
		Strategies:      []delegate.ScanStrategy{delegate.ScanDirect, delegate.ScanPrefetchPaired},
		Difficulty:      10,
		TestTime:        10 * time.Millisecond,
		CalibrationTime: time.Millisecond,
		Threads:         2,
	}, &TextReporter{W: &buf})
	require.NoError(t, err)
	require.NotZero(t, sum)
	require.Zero(t, sum%workload.UnitResult(10))

	out := buf.String()
	for _, s := range [...]string{
		"Difficulty: 10\n",
		"Test time : 0.01\n",
		"Maximal number of threads: 2\n",
		"Work time for one unit of work: ",
		"Running in a single thread without any locking...\n",
		"Using multiple threads and a sync.Mutex...\n",
		"Running in a single thread with delegation (direct)...\n",
		"Running in a single thread with delegation (prefetch-paired)...\n",
		"Using 2 threads:\n",
		"  thread counts: ",
	} {
		assert.Contains(t, out, s)
	}
	// single + 2 mutex + 2*2 delegated
	assert.Equal(t, 7, strings.Count(out, "  time="))
}

func TestSuite_invalid(t *testing.T) {
	_, err := Suite(context.Background(), Config{TestTime: time.Second}, &TextReporter{W: &bytes.Buffer{}})
	require.Error(t, err)
	_, err = Suite(context.Background(), Config{Threads: 1}, &TextReporter{W: &bytes.Buffer{}})
	require.Error(t, err)
}

type recordingReporter struct {
	events []string
}

func (x *recordingReporter) Start(cfg Config) {
	x.events = append(x.events, `start`)
}

func (x *recordingReporter) Calibrated(c workload.Calibration) {
	x.events = append(x.events, `calibrated`)
}

func (x *recordingReporter) Section(title string) {
	x.events = append(x.events, title)
}

func (x *recordingReporter) Result(r Result) {
	x.events = append(x.events, r.Name+`/`+strconv.Itoa(r.Threads()))
}

func TestSuite_order(t *testing.T) {
	var r recordingReporter
	_, err := Suite(context.Background(), Config{
		Strategies:      []delegate.ScanStrategy{delegate.ScanPrefetchPaired},
		Difficulty:      1,
		TestTime:        5 * time.Millisecond,
		CalibrationTime: time.Millisecond,
		Threads:         2,
	}, &r)
	require.NoError(t, err)
	if diff := cmp.Diff([]string{
		`start`,
		`Measuring a single workload...`,
		`calibrated`,
		`Running in a single thread without any locking...`,
		`single/1`,
		`Using multiple threads and a sync.Mutex...`,
		`mutex/1`,
		`mutex/2`,
		`Running in a single thread with delegation (prefetch-paired)...`,
		`delegated/prefetch-paired/1`,
		`delegated/prefetch-paired/2`,
	}, r.events); diff != "" {
		t.Errorf("unexpected events (-want +got):\n%s", diff)
	}
}

func TestSuite_cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var r recordingReporter
	_, err := Suite(ctx, Config{
		Difficulty:      1,
		TestTime:        time.Hour,
		CalibrationTime: time.Millisecond,
		Threads:         4,
	}, &r)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, `single/1`, r.events[len(r.events)-1])
}
