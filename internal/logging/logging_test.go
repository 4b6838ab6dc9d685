package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetupFiltersBelowLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	logger := Setup(Options{Level: "warn", Format: FormatJSON, Output: &buf})

	logger.Info().Msg("hidden")
	logger.Warn().Str("job", "j-1").Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	require.Equal(t, "shown", entry["message"])
	require.Equal(t, "j-1", entry["job"])
}

func TestSetupUnknownLevelFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	Setup(Options{Level: "chatty", Format: FormatJSON, Output: &buf})
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	componentLogger := Component("orchestrator")
	componentLogger.Info().Msg("hello")
	require.Contains(t, buf.String(), `"component":"orchestrator"`)
}
