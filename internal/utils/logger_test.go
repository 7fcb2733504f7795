package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"telemetry-bridge/internal/config"
	"telemetry-bridge/internal/model"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bridge.log")
	logger, err := NewLogger(&config.LoggingConfig{
		Level:   "info",
		Format:  "json",
		Output:  path,
		MaxSize: 1,
	})
	require.NoError(t, err)

	logger.Info("hello", zap.String("k", "v"))
	require.NoError(t, CloseLogger(logger))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(&config.LoggingConfig{Level: "chatty", Output: "stdout"})
	assert.Error(t, err)
}

func TestDeviceLoggerFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	device := model.DeviceIdentity{Handle: "/dev/ttyACM0", VendorID: 0x2341, ProductID: 0x0043}

	dl := NewDeviceLogger(zap.New(core), device)
	dl.LogConnection("open", true, nil)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/dev/ttyACM0", fields["device"])
	assert.Equal(t, "0x2341:0x0043", fields["vid_pid"])
	assert.Equal(t, "open", fields["action"])
}

func TestLogAPIRequestLevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  zapcore.Level
	}{
		{200, zapcore.DebugLevel},
		{409, zapcore.WarnLevel},
		{503, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		core, logs := observer.New(zapcore.DebugLevel)
		sl := NewServiceLogger(zap.New(core), "http-server")
		sl.LogAPIRequest("POST", "/api/v1/reset", "curl/8", "127.0.0.1", tt.status, 3*time.Millisecond)

		entries := logs.FilterMessage("API request").All()
		require.Len(t, entries, 1, "status %d", tt.status)
		assert.Equal(t, tt.level, entries[0].Level, "status %d", tt.status)

		fields := entries[0].ContextMap()
		assert.Equal(t, "/api/v1/reset", fields["path"])
		assert.Equal(t, int64(tt.status), fields["status_code"])
		assert.Equal(t, "http-server", fields["service"])
	}
}

func TestLogAPIRequestRespectsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	NewServiceLogger(zap.New(core), "http-server").
		LogAPIRequest("GET", "/api/v1/status", "", "127.0.0.1", 200, time.Millisecond)

	assert.Zero(t, logs.Len())
}

func TestLoggerWithRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := LoggerWithRequestID(zap.New(core), "req-1")
	logger.Info("handled")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
}
