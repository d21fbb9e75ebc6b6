package config

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLogLevelFallsBackToInfo(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, logLevel("shouting"))
	require.Equal(t, zerolog.InfoLevel, logLevel(""))
	require.Equal(t, zerolog.DebugLevel, logLevel("DEBUG"))
	require.Equal(t, zerolog.WarnLevel, logLevel(" warn "))
}

func TestLogWriterFormats(t *testing.T) {
	_, console := logWriter("console").(zerolog.ConsoleWriter)
	require.True(t, console)
	_, console = logWriter("json").(zerolog.ConsoleWriter)
	require.False(t, console)
}
