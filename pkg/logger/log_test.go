package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.SetLogLevel("error")
	l.Info("hidden")
	require.Empty(t, buf.String())

	l.SetLogLevel("DEBUG")
	require.Equal(t, slog.LevelDebug, l.Level())
	l.Debug("shown", "host", "10.0.0.5")
	require.Contains(t, buf.String(), "host=10.0.0.5")
	require.Contains(t, buf.String(), "timestamp=")

	l.SetLogLevel("bogus")
	require.Equal(t, slog.LevelDebug, l.Level())
}
