package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok, s)
		require.Equal(t, lvl, got, s)
	}

	_, ok := ParseLogLevel("verbose")
	require.False(t, ok)
}

// TestContextLogger checks that named and enriched loggers travel with the context.
func TestContextLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())
	ctx = WithName(ctx, "builder")
	ctx = WithKV(ctx, "output", "Example.exe")

	InfoKV(ctx, "Published", "bytes", 42)
	NewLeveled(ctx).Warn("retrying", "attempt", 1)

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "builder", entries[0].LoggerName)
	require.Equal(t, "Example.exe", entries[0].ContextMap()["output"])
	require.EqualValues(t, 42, entries[0].ContextMap()["bytes"])
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

// TestFromContext_Fallback returns the global logger for bare contexts.
func TestFromContext_Fallback(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
}
