// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/goalpilot/internal/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("json format writes structured entries", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "svc"}, zapcore.AddSync(&buf))

		logger.Info("subgoal completed", zap.String("subgoal_id", "subgoal_1"))
		require.NoError(t, logger.Sync())

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "svc", entry["logger"])
		assert.Equal(t, "subgoal completed", entry["msg"])
		assert.Equal(t, "subgoal_1", entry["subgoal_id"])
	})

	t.Run("console format colorizes the level", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := config.NewDefaultConfig().Logger()
		logger := NewLogger(cfg, zapcore.AddSync(&buf))

		logger.Warn("retrying action")
		require.NoError(t, logger.Sync())

		out := buf.String()
		assert.Contains(t, out, colorMap["yellow"]+"WARN"+colorReset)
		assert.Contains(t, out, "goalpilot.")
		assert.Contains(t, out, "retrying action")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(config.LoggerConfig{Level: "chatty", Format: "json"}, zapcore.AddSync(&buf))

		logger.Debug("hidden")
		logger.Info("visible")
		require.NoError(t, logger.Sync())

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "visible")
	})

	t.Run("log file receives json entries", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "goalpilot.log")
		var console bytes.Buffer
		logger := NewLogger(config.LoggerConfig{Level: "info", Format: "console", LogFile: path, MaxSize: 1}, zapcore.AddSync(&console))

		logger.Error("goal failed")
		_ = logger.Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		line := strings.TrimSpace(strings.Split(string(data), "\n")[0])
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "goal failed", entry["msg"])
	})
}

func TestGlobalLogger(t *testing.T) {
	ResetForTest()
	defer ResetForTest()

	var first, second bytes.Buffer
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "first"}, zapcore.AddSync(&first))
	// The second call is ignored: initialization happens once.
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "second"}, zapcore.AddSync(&second))

	GetLogger().Info("hello")
	Sync()

	assert.Contains(t, first.String(), `"logger":"first"`)
	assert.Empty(t, second.String())
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	logger := GetLogger()
	require.NotNil(t, logger)
	assert.NotPanics(t, func() { logger.Info("fallback works") })
}
