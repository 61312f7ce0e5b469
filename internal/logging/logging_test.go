package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":       slog.LevelInfo,
		"debug":  slog.LevelDebug,
		"info":   slog.LevelInfo,
		"WARN":   slog.LevelWarn,
		"error":  slog.LevelError,
		"info+2": slog.LevelInfo + 2,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	_, err := ParseLevel("verbose")
	require.ErrorIs(t, err, ErrLevel)
}

func TestNew_FansOutToFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "hll.log")

	log, closer, err := New(&console, slog.LevelInfo, path)
	require.NoError(t, err)

	log.Debug("hidden detail")
	log.Info("batch committed", "files", 3)
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, out := range []string{console.String(), string(data)} {
		require.Contains(t, out, "batch committed")
		require.NotContains(t, out, "hidden detail")
	}
}

func TestNew_ConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	log, closer, err := New(&console, slog.LevelDebug, "")
	require.NoError(t, err)
	log.Debug("restored open game")
	require.NoError(t, closer())
	require.Contains(t, console.String(), "restored open game")
}

func TestNew_BadLogPath(t *testing.T) {
	_, _, err := New(&bytes.Buffer{}, slog.LevelInfo, filepath.Join(t.TempDir(), "missing", "hll.log"))
	if err == nil {
		t.Fatal("expected error for unwritable log path")
	}
}
