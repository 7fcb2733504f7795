package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	t.Setenv("TELEMETRY_BRIDGE_COLLECTOR_PASSWORD", "secret")

	cfg, err := LoadFile(writeConfig(t, "app:\n  name: bridge\n"))
	require.NoError(t, err)

	assert.Equal(t, "bridge", cfg.App.Name)
	assert.Equal(t, "serial", cfg.Device.Source)
	assert.Equal(t, "vendor", cfg.Device.SelectionPolicy)
	assert.Equal(t, []string{"0x2341"}, cfg.Device.VendorIDs)
	assert.Equal(t, 2*time.Second, cfg.Device.DiscoveryInterval)
	assert.Equal(t, "auto", cfg.Permission.Mode)
	assert.Equal(t, "https://kayukin.systems/api/sensors", cfg.Collector.URL)
	assert.Equal(t, 10*time.Second, cfg.Collector.Timeout)
	assert.Equal(t, "kayukin", cfg.Collector.Username)
	assert.Equal(t, "127.0.0.1:8085", cfg.GetServerAddr())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFileEnvironmentOverrides(t *testing.T) {
	t.Setenv("TELEMETRY_BRIDGE_COLLECTOR_USERNAME", "sensor")
	t.Setenv("TELEMETRY_BRIDGE_COLLECTOR_PASSWORD", "secret")
	t.Setenv("TELEMETRY_BRIDGE_PERMISSION_MODE", "prompt")

	cfg, err := LoadFile(writeConfig(t, "collector:\n  url: http://collector.local/api\n"))
	require.NoError(t, err)

	assert.Equal(t, "http://collector.local/api", cfg.Collector.URL)
	assert.Equal(t, "sensor", cfg.Collector.Username)
	assert.Equal(t, "secret", cfg.Collector.Password)
	assert.Equal(t, "prompt", cfg.Permission.Mode)
}

func TestLoadFileRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown source", "device:\n  source: bluetooth\n"},
		{"unknown policy", "device:\n  selection_policy: newest\n"},
		{"bad vendor id", "device:\n  vendor_ids: [\"arduino\"]\n"},
		{"relative collector url", "collector:\n  url: /api/sensors\n"},
		{"unknown permission mode", "permission:\n  mode: always\n"},
		{"unknown log level", "logging:\n  level: verbose\n"},
		{"mqtt without topic", "collector:\n  mqtt:\n    enabled: true\n    topic: \"\"\n"},
		{"empty collector username", "collector:\n  username: \"\"\n"},
	}

	t.Setenv("TELEMETRY_BRIDGE_COLLECTOR_PASSWORD", "secret")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config validation failed")
		})
	}
}

func TestLoadFileRequiresCollectorPassword(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "app:\n  name: bridge\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collector.password is required")
}

func TestShippedConfigLoads(t *testing.T) {
	t.Setenv("TELEMETRY_BRIDGE_COLLECTOR_PASSWORD", "secret")

	cfg, err := LoadFile(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "kayukin", cfg.Collector.Username)
	assert.Equal(t, "secret", cfg.Collector.Password)
}

func TestParsedVendorIDs(t *testing.T) {
	ids, err := DeviceConfig{VendorIDs: []string{"0x2341", "2a03", " 0X1A86 "}}.ParsedVendorIDs()
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x2341, 0x2A03, 0x1A86}, ids)

	_, err = DeviceConfig{VendorIDs: []string{"0x123456"}}.ParsedVendorIDs()
	assert.Error(t, err)
}

func TestRedactedMasksCredentials(t *testing.T) {
	cfg := &Config{Collector: CollectorConfig{
		Username: "sensor",
		Password: "secret",
		MQTT:     MQTTConfig{Password: "mqtt-secret"},
	}}

	redacted := cfg.Redacted()
	assert.Equal(t, "sensor", redacted.Collector.Username)
	assert.Equal(t, "***", redacted.Collector.Password)
	assert.Equal(t, "***", redacted.Collector.MQTT.Password)
	assert.Equal(t, "secret", cfg.Collector.Password)
}
