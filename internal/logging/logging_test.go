package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		raw     string
		level   zapcore.Level
		enabled bool
		ok      bool
	}{
		{"", zapcore.InfoLevel, true, false},
		{"trace", zapcore.DebugLevel, true, true},
		{" DEBUG ", zapcore.DebugLevel, true, true},
		{"warning", zapcore.WarnLevel, true, true},
		{"error", zapcore.ErrorLevel, true, true},
		{"off", zapcore.InfoLevel, false, true},
		{"loud", zapcore.InfoLevel, true, false},
	}
	for _, tc := range cases {
		level, enabled, ok := ParseLevel(tc.raw)
		assert.Equal(t, tc.level, level, tc.raw)
		assert.Equal(t, tc.enabled, enabled, tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
	}
}

func TestNew_JSONWritesToConfiguredPath(t *testing.T) {
	out := filepath.Join(t.TempDir(), "log.json")
	logger, err := New(Options{
		Format:      FormatJSON,
		OutputPaths: []string{out},
		Getenv:      func(string) string { return "" },
	})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("seeded generated file")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"seeded generated file"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestNew_VerboseBeatsEnv(t *testing.T) {
	out := filepath.Join(t.TempDir(), "log.txt")
	logger, err := New(Options{
		Verbose:     true,
		OutputPaths: []string{out},
		Getenv:      func(string) string { return "error" },
	})
	require.NoError(t, err)
	logger.Debug("detail")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "detail"))
}

func TestNew_EnvOffDiscards(t *testing.T) {
	logger, err := New(Options{Getenv: func(string) string { return "off" }})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
}

func TestNew_UnknownFormat(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	assert.Error(t, err)
}
