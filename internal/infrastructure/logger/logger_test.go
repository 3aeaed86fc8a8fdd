package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestConfigs(t *testing.T) {
	assert.Equal(t, "console", DefaultConfig().Format)
	assert.Equal(t, "json", ProductionConfig().Format)
	assert.Equal(t, "info", ProductionConfig().Level)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level   string
		want    zapcore.Level
		wantErr bool
	}{
		{level: "debug", want: zapcore.DebugLevel},
		{level: "INFO", want: zapcore.InfoLevel},
		{level: "", want: zapcore.InfoLevel},
		{level: "warning", want: zapcore.WarnLevel},
		{level: "error", want: zapcore.ErrorLevel},
		{level: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLevel(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, level)
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := New(Config{Level: "loud"}, "wsi-viewer")
		assert.Error(t, err)
	})

	t.Run("rejects unwritable file", func(t *testing.T) {
		_, err := New(Config{Output: filepath.Join(t.TempDir(), "missing", "app.log")}, "")
		assert.Error(t, err)
	})

	t.Run("writes JSON entries with the service name to a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.log")
		logger, err := New(Config{Level: "debug", Format: "json", Output: path}, "wsi-viewer")
		require.NoError(t, err)

		logger.Debug("slides created", zap.Int("slides", 2))
		require.NoError(t, logger.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
		assert.Equal(t, "slides created", entry["msg"])
		assert.Equal(t, "debug", entry["level"])
		assert.Equal(t, "wsi-viewer", entry["service"])
		assert.Equal(t, float64(2), entry["slides"])
	})

	t.Run("filters below the configured level", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.log")
		logger, err := New(Config{Level: "warn", Format: "json", Output: path}, "")
		require.NoError(t, err)

		logger.Info("hidden")
		require.NoError(t, logger.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Empty(t, data)
	})
}

func TestNewForEnvironment(t *testing.T) {
	for _, env := range []string{"development", "production"} {
		t.Run(env, func(t *testing.T) {
			logger, err := NewForEnvironment(env, "wsi-viewer")
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestTee(t *testing.T) {
	primaryCore, primary := observer.New(zapcore.InfoLevel)
	extraCore, extra := observer.New(zapcore.WarnLevel)

	log := Tee(zap.New(primaryCore), extraCore).With(zap.String("viewer_id", "viewer-1"))
	log.Info("session opened")
	log.Warn("archive slow")

	assert.Equal(t, 2, primary.Len())
	require.Equal(t, 1, extra.Len())
	entry := extra.All()[0]
	assert.Equal(t, "archive slow", entry.Message)
	assert.Equal(t, "viewer-1", entry.ContextMap()["viewer_id"])

	base := zap.New(primaryCore)
	assert.Same(t, base, Tee(base))
}
