package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		require.Equal(t, want, ParseLevel(in), in)
	}
}

func TestJSONLoggerRedactsCredentials(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(&buf, "json", "info")
	l.Info("login", "email", "ada@example.com", "password", "hunter2", "token", "abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "ada@example.com", line["email"])
	require.Equal(t, "[REDACTED]", line["password"])
	require.Equal(t, "[REDACTED]", line["token"])
}

func TestPrettyHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := New(&buf, "pretty", "warn")

	l.Info("hidden")
	require.Empty(t, buf.String())

	l.With("request_id", "r-1").WithGroup("auth").Warn("denied", "user_id", "u-1", "password", "x")
	out := buf.String()
	require.Contains(t, out, "denied")
	require.Contains(t, out, "request_id")
	require.Contains(t, out, "auth.user_id")
	require.Contains(t, out, "[REDACTED]")
	require.NotContains(t, out, "=x")
}

func TestContextLogger(t *testing.T) {
	t.Parallel()

	require.Equal(t, slog.Default(), FromContext(context.Background()))

	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithContext(context.Background(), l)
	require.Same(t, l, FromContext(ctx))
}
