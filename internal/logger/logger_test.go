package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestLookupLevel_RejectsUnknownNames(t *testing.T) {
	for _, name := range []string{"trace", "fatal", "panic", "disabled", "", "verbose"} {
		_, ok := LookupLevel(name)
		assert.False(t, ok, name)
	}

	level, ok := LookupLevel("Warning")
	assert.True(t, ok)
	assert.Equal(t, zerolog.WarnLevel, level)
}

func TestWithComponent(t *testing.T) {
	previous := zerolog.GlobalLevel()
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(previous)
		SetOutput(os.Stderr)
	})

	var buf bytes.Buffer
	SetOutput(&buf)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	WithComponent("screencast").Info().Str("session", "/s/1").Msg("ScreenCast session created")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "screencast", line["component"])
	assert.Equal(t, "/s/1", line["session"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "ScreenCast session created", line["message"])
}

func TestConfigure_Level(t *testing.T) {
	previous := zerolog.GlobalLevel()
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(previous)
		SetOutput(os.Stderr)
	})

	Configure(Options{Level: "error"})
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())

	var buf bytes.Buffer
	SetOutput(&buf)
	WithComponent("backend").Warn().Msg("dropped")
	assert.Empty(t, buf.String())
}
