package protocol

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"DEBUG":   zerolog.DebugLevel,
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"WARN":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"ERROR":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for input, want := range tests {
		assert.Equal(t, want, ParseLogLevel(input), "ParseLogLevel(%q)", input)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	logger := Component(NewLogger(&buf, "WARN", "json"), "poller")

	logger.Info().Msg("Filtered out")
	logger.Warn().Str("method", "getInfo").Msg("RPC call failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "log output: %q", buf.String())

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "poller", entry["component"])
	assert.Equal(t, "getInfo", entry["method"])
	assert.Equal(t, "warn", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestNewLogger_Console(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	logger := NewLogger(&buf, "INFO", "console")
	logger.Info().Msg("Exporter listening")

	assert.False(t, strings.HasPrefix(buf.String(), "{"), "console output looks like JSON: %q", buf.String())
	assert.Contains(t, buf.String(), "Exporter listening")
}

func TestInitFileLogger(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	path := filepath.Join(t.TempDir(), "exporter.log")
	logger, closer := InitFileLogger("INFO", "json", LogFile{Path: path, MaxSizeMB: 1})
	logger.Info().Str("exporterID", "abc12345").Msg("Exporter starting")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"exporterID":"abc12345"`)
}
