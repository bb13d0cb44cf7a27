package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	require.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	require.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
}

func TestModuleAddsField(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug", false)
	m := l.Module("probe")
	m.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "probe", entry["module"])
	require.Equal(t, "hello", entry["message"])
}

func TestLevelFiltersDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info", false)
	l.Debug().Msg("hidden")
	require.Zero(t, buf.Len())
}
