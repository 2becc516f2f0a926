package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("WARN"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("production"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("chatty"))
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("json", FormatConsole))
	assert.Equal(t, FormatConsole, ParseFormat("console", FormatJSON))
	assert.Equal(t, FormatJSON, ParseFormat("pretty", FormatJSON))
}

func TestNewToJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewTo(&buf, "info", FormatJSON).Named(ComponentStore)
	l.Debug("hidden")
	l.Info("set", zap.Int("owner", 101))
	require.NoError(t, l.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"component":"Store"`)
	assert.Contains(t, out, `"owner":101`)
}

func TestNewToConsole(t *testing.T) {
	var buf bytes.Buffer
	l := NewTo(&buf, "debug", FormatConsole)
	l.Debug("visible")
	require.NoError(t, l.Sync())
	assert.Contains(t, buf.String(), " | DEBUG | ")
}
