package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLogLevel(t *testing.T) {
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
		require.Truef(t, ok, "level %q", s)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("verbose")
	require.False(t, ok)
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	require.Same(t, Logger(), FromContext(context.Background()))
	//nolint:staticcheck // nil context is handled explicitly.
	require.Same(t, Logger(), FromContext(nil))
}

func TestContextLoggerNameAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())

	ctx = WithName(ctx, "serial")
	ctx = WithKV(ctx, "port", "/dev/ttyUSB0")

	Infof(ctx, "frame %d", 3)
	WarnKV(ctx, "discarded", "reason", "fields")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "serial", entries[0].LoggerName)
	require.Equal(t, "frame 3", entries[0].Message)
	require.Equal(t, "/dev/ttyUSB0", entries[0].ContextMap()["port"])
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "fields", entries[1].ContextMap()["reason"])
}

func TestSetLevel(t *testing.T) {
	prev := Level()
	t.Cleanup(func() { SetLevel(prev) })

	SetLevel(zapcore.ErrorLevel)
	require.Equal(t, zapcore.ErrorLevel, Level())
}
