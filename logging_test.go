package delegate

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is written by more than one goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (x *syncBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.Write(p)
}

func (x *syncBuffer) String() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.String()
}

func newTestLogger(buf io.Writer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(buf), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(stumpy.L.LevelDebug()),
	).Logger()
}

func TestServer_warningsRateLimited(t *testing.T) {
	var buf bytes.Buffer
	x := newScanServer(func() {})
	x.logger = newTestLogger(&buf)
	x.limiter = catrate.NewLimiter(DefaultLogRates())

	s := NewSlot()
	x.roster.add(s)
	for range 5 {
		tick, err := s.Request(JobKind(9))
		require.NoError(t, err)
		require.Equal(t, 1, x.scanDirect())
		require.ErrorIs(t, s.Await(tick, SpinPure), ErrUnknownJobKind)
	}
	require.Equal(t, uint64(5), x.stats.unknown.Load())

	out := buf.String()
	require.Equal(t, 1, strings.Count(out, `delegate: unknown job kind`), out)
	assert.Contains(t, out, `"kind":"9"`)

	// categories are independent
	x.work = WorkUnitFunc(func() { panic(errors.New(`kaboom`)) })
	tick, err := s.Request(JobPerform)
	require.NoError(t, err)
	x.scanDirect()
	require.Error(t, s.Await(tick, SpinPure))
	out = buf.String()
	assert.Equal(t, 1, strings.Count(out, `delegate: work unit panicked`), out)
	assert.Contains(t, out, `kaboom`)
}

func TestServer_warningsUnlimited(t *testing.T) {
	var buf bytes.Buffer
	x := newScanServer(func() {})
	x.logger = newTestLogger(&buf)

	s := NewSlot()
	x.roster.add(s)
	for range 3 {
		tick, err := s.Request(JobKind(9))
		require.NoError(t, err)
		x.scanDirect()
		require.ErrorIs(t, s.Await(tick, SpinPure), ErrUnknownJobKind)
	}
	require.Equal(t, 3, strings.Count(buf.String(), `delegate: unknown job kind`))
}

func TestServer_logsLifecycle(t *testing.T) {
	var buf bytes.Buffer
	x, err := New(WorkUnitFunc(func() {}), WithLogger(newTestLogger(&buf)))
	require.NoError(t, err)
	c, err := x.NewClient()
	require.NoError(t, err)
	require.NoError(t, c.Perform())
	require.NoError(t, c.Close(t.Context()))
	require.NoError(t, x.Close())

	out := buf.String()
	for _, msg := range [...]string{
		`delegate: dispatcher started`,
		`delegate: roster merged`,
		`delegate: dispatcher stopping`,
		`delegate: dispatcher stopped`,
	} {
		assert.Contains(t, out, msg)
	}
}

func TestServer_Unregister_slowWarning(t *testing.T) {
	if testing.Short() {
		t.Skip(`waits on the slow unregister threshold`)
	}

	var buf syncBuffer
	work := newBlockingWork()
	x := newTestServer(t, work, WithLogger(newTestLogger(&buf)))

	a, err := x.NewClient()
	require.NoError(t, err)
	performed := make(chan error, 1)
	go func() { performed <- a.Perform() }()
	<-work.entered

	s := NewSlot()
	require.NoError(t, x.Register(s))
	unregistered := make(chan error, 1)
	go func() { unregistered <- x.Unregister(context.Background(), s) }()

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), `delegate: unregister still waiting on the dispatcher`)
	}, 10*time.Second, 10*time.Millisecond)

	close(work.release)
	require.NoError(t, <-unregistered)
	require.NoError(t, <-performed)
	require.NoError(t, a.Close(t.Context()))
	assert.Equal(t, 1, strings.Count(buf.String(), `delegate: unregister still waiting on the dispatcher`))
}
