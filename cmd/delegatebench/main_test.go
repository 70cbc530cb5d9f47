package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/joeycumines/go-delegate"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	var stderr bytes.Buffer
	cfg, err := parseArgs([]string{`-strategy`, `paired`, `-calibrate`, `5ms`, `100`, `0.5`, `4`}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), cfg.Difficulty)
	assert.Equal(t, 500*time.Millisecond, cfg.TestTime)
	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, 5*time.Millisecond, cfg.CalibrationTime)
	assert.Equal(t, []delegate.ScanStrategy{delegate.ScanPrefetchPaired}, cfg.Strategies)
	assert.Len(t, cfg.ServerOptions, 4)
	require.NotNil(t, cfg.Logger)
}

func TestParseArgs_invalid(t *testing.T) {
	for _, args := range [...][]string{
		{},
		{`1`, `2`},
		{`x`, `1`, `1`},
		{`1`, `0`, `1`},
		{`1`, `1`, `0`},
		{`-strategy`, `nope`, `1`, `1`, `1`},
		{`-spin`, `nope`, `1`, `1`, `1`},
		{`-idle`, `nope`, `1`, `1`, `1`},
		{`-log-level`, `nope`, `1`, `1`, `1`},
	} {
		_, err := parseArgs(args, new(bytes.Buffer))
		assert.Error(t, err, "%q", args)
	}
}

func TestParseLevel(t *testing.T) {
	level, err := parseLevel(`debug`)
	require.NoError(t, err)
	assert.Equal(t, logiface.LevelDebug, level)
	level, err = parseLevel(`disabled`)
	require.NoError(t, err)
	assert.Equal(t, logiface.LevelDisabled, level)
}

func TestRun(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{`-calibrate`, `1ms`, `-strategy`, `direct`, `10`, `0.01`, `1`}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "Difficulty: 10\n")
	assert.Contains(t, stdout.String(), "Running in a single thread with delegation (direct)...\n")
}

func TestRun_usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `Usage: delegatebench`)
	assert.Equal(t, 0, run(context.Background(), []string{`-h`}, &stdout, &stderr))
}
