package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestSetLevel(t *testing.T) {
	logger, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, logger.Level())

	require.NoError(t, logger.SetLevel("debug"))
	assert.Equal(t, zapcore.DebugLevel, logger.Level())
	assert.True(t, logger.ForRank("worker", 2).Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, logger.SetLevel("loud"))
}

func TestConfigsWriteToStderr(t *testing.T) {
	assert.Equal(t, []string{"stderr"}, DefaultConfig().OutputPaths)
	assert.Equal(t, []string{"stderr"}, DevelopmentConfig().OutputPaths)
	assert.True(t, DevelopmentConfig().Development)
}

func TestPresetLoggers(t *testing.T) {
	production := NewDefault()
	assert.Equal(t, zapcore.InfoLevel, production.Level())
	assert.False(t, production.Core().Enabled(zapcore.DebugLevel))

	development := NewDevelopment()
	assert.Equal(t, zapcore.DebugLevel, development.Level())
	assert.True(t, development.Core().Enabled(zapcore.DebugLevel))
}

func TestNop(t *testing.T) {
	logger := Nop()
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
	logger.Sync()
}
