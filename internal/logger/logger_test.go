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
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"panic": zapcore.PanicLevel,
		"fatal": zapcore.FatalLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestWithLevel verifies the per-logger level override filters lower levels.
func TestWithLevel(t *testing.T) {
	t.Parallel()

	core, observed := observer.New(zapcore.DebugLevel)
	l := zap.New(core).WithOptions(WithLevel(zapcore.WarnLevel)).Sugar()

	l.Info("filtered")
	l.Warn("kept")

	require.Equal(t, 1, observed.Len())
	require.Equal(t, "kept", observed.All()[0].Message)
}

// TestContextLogger verifies context carriage and fallback to the global logger.
func TestContextLogger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	require.Equal(t, Logger(), FromContext(ctx))

	core, observed := observer.New(zapcore.InfoLevel)
	ctx = ToContext(ctx, zap.New(core).Sugar())
	ctx = WithName(ctx, "fetch")

	InfoKV(ctx, "started", "image", "shani-os.img")

	require.Equal(t, 1, observed.Len())

	entry := observed.All()[0]
	require.Equal(t, "started", entry.Message)
	require.Equal(t, "fetch", entry.LoggerName)
}
