package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "", want: slog.LevelInfo},
		{input: " INFO ", want: slog.LevelInfo},
		{input: "warning", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// The logging tests replace the default logger, so they do not run in parallel.
func TestSetupLogger(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	require.NoError(t, SetupLogger("debug", "json", &buf))

	LogDebug("transition", Fields{"from": "CONFIRM"})
	LogInfo("started", Fields{"user_id": "1"})
	LogError(errors.New("boom"), "failed", Fields{"path": "/tmp/x"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[2], &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "failed", entry["msg"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "/tmp/x", entry["path"])

	buf.Reset()
	require.NoError(t, SetupLogger("warn", "console", &buf))
	LogInfo("hidden", nil)
	assert.Empty(t, buf.String())

	assert.ErrorIs(t, SetupLogger("info", "xml", &buf), ErrInvalidConfig)
}
