package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestInit_JSON(t *testing.T) {
	t.Cleanup(InitDefault)

	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "warn", Format: FormatJSON, Output: &buf}))

	log.Info().Msg("hidden")
	log.Warn().Str("reason", "expired").Msg("session.logged_out")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "expired", entry["reason"])
	require.Equal(t, "session.logged_out", entry["message"])
}

func TestInit_Console(t *testing.T) {
	t.Cleanup(InitDefault)

	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "debug", NoColor: true, Output: &buf}))
	require.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	log.Debug().Msg("monitor armed")
	require.Contains(t, buf.String(), "monitor armed")
}

func TestInit_Invalid(t *testing.T) {
	t.Cleanup(InitDefault)

	require.Error(t, Init(Options{Level: "loud"}))
	require.Error(t, Init(Options{Format: "xml"}))
}
