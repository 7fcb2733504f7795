// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Device     DeviceConfig     `mapstructure:"device"`
	Permission PermissionConfig `mapstructure:"permission"`
	Collector  CollectorConfig  `mapstructure:"collector"`
	App        AppConfig        `mapstructure:"app"`
}

// ServerConfig represents the local HTTP server configuration
type ServerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host" validate:"required"`
	Port           string        `mapstructure:"port" validate:"required"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DeviceConfig represents device discovery and link configuration.
// Serial framing is fixed and deliberately absent here.
type DeviceConfig struct {
	Source            string        `mapstructure:"source"`
	SelectionPolicy   string        `mapstructure:"selection_policy"`
	VendorIDs         []string      `mapstructure:"vendor_ids"`
	DiscoveryInterval time.Duration `mapstructure:"discovery_interval"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	MaxFrameSize      int           `mapstructure:"max_frame_size"`
	FrameBuffer       int           `mapstructure:"frame_buffer"`
	USBDebug          bool          `mapstructure:"usb_debug"`
}

// PermissionConfig represents how device access is granted
type PermissionConfig struct {
	Mode   string `mapstructure:"mode"`
	Notify bool   `mapstructure:"notify"`
}

// CollectorConfig represents the remote collector endpoint
type CollectorConfig struct {
	URL      string        `mapstructure:"url" validate:"required"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MQTT     MQTTConfig    `mapstructure:"mqtt"`
}

// MQTTConfig represents the optional MQTT mirror of submissions
type MQTTConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Broker         string        `mapstructure:"broker"`
	Topic          string        `mapstructure:"topic"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables. A missing
// config file is not an error; defaults and environment apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/telemetry-bridge")

	return load(v)
}

// LoadFile loads configuration from an explicit file path
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// Environment variable support
	v.SetEnvPrefix("TELEMETRY_BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 14)
	v.SetDefault("logging.compress", true)

	// Device defaults
	v.SetDefault("device.source", "serial")
	v.SetDefault("device.selection_policy", "vendor")
	v.SetDefault("device.vendor_ids", []string{"0x2341"})
	v.SetDefault("device.discovery_interval", "2s")
	v.SetDefault("device.read_timeout", "0s")
	v.SetDefault("device.max_frame_size", 4096)
	v.SetDefault("device.frame_buffer", 64)
	v.SetDefault("device.usb_debug", false)

	// Permission defaults
	v.SetDefault("permission.mode", "auto")
	v.SetDefault("permission.notify", true)

	// Collector defaults
	v.SetDefault("collector.url", "https://kayukin.systems/api/sensors")
	v.SetDefault("collector.username", "kayukin")
	v.SetDefault("collector.password", "")
	v.SetDefault("collector.timeout", "10s")
	v.SetDefault("collector.mqtt.enabled", false)
	v.SetDefault("collector.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("collector.mqtt.topic", "sensors/telemetry")
	v.SetDefault("collector.mqtt.connect_timeout", "5s")

	// App defaults
	v.SetDefault("app.name", "telemetry-bridge")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Enabled {
		if config.Server.Host == "" {
			return fmt.Errorf("server.host is required")
		}
		if config.Server.Port == "" {
			return fmt.Errorf("server.port is required")
		}
	}

	if config.Collector.URL == "" {
		return fmt.Errorf("collector.url is required")
	}
	if u, err := url.Parse(config.Collector.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("collector.url must be an absolute URL: %q", config.Collector.URL)
	}
	// Every submission carries Basic auth
	if config.Collector.Username == "" {
		return fmt.Errorf("collector.username is required")
	}
	if config.Collector.Password == "" {
		return fmt.Errorf("collector.password is required (or set TELEMETRY_BRIDGE_COLLECTOR_PASSWORD)")
	}
	if config.Collector.MQTT.Enabled && config.Collector.MQTT.Topic == "" {
		return fmt.Errorf("collector.mqtt.topic is required when mqtt is enabled")
	}

	validSources := []string{"serial", "usb"}
	if !slices.Contains(validSources, config.Device.Source) {
		return fmt.Errorf("device.source must be one of: %v", validSources)
	}

	validPolicies := []string{"first", "vendor"}
	if !slices.Contains(validPolicies, config.Device.SelectionPolicy) {
		return fmt.Errorf("device.selection_policy must be one of: %v", validPolicies)
	}
	if config.Device.SelectionPolicy == "vendor" {
		if len(config.Device.VendorIDs) == 0 {
			return fmt.Errorf("device.vendor_ids is required for the vendor selection policy")
		}
		if _, err := config.Device.ParsedVendorIDs(); err != nil {
			return err
		}
	}
	if config.Device.DiscoveryInterval <= 0 {
		return fmt.Errorf("device.discovery_interval must be positive")
	}
	if config.Device.MaxFrameSize <= 0 {
		return fmt.Errorf("device.max_frame_size must be positive")
	}

	validModes := []string{"auto", "prompt"}
	if !slices.Contains(validModes, config.Permission.Mode) {
		return fmt.Errorf("permission.mode must be one of: %v", validModes)
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	if !slices.Contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !slices.Contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// ParsedVendorIDs returns the configured vendor filter as numeric IDs.
// Both "0x2341" and "2341" are read as hexadecimal.
func (d DeviceConfig) ParsedVendorIDs() ([]uint16, error) {
	ids := make([]uint16, 0, len(d.VendorIDs))
	for _, raw := range d.VendorIDs {
		s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "0x")
		id, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid vendor id %q: %w", raw, err)
		}
		ids = append(ids, uint16(id))
	}
	return ids, nil
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}

// Redacted returns a copy safe for logging, with credentials masked
func (c *Config) Redacted() Config {
	out := *c
	if out.Collector.Password != "" {
		out.Collector.Password = "***"
	}
	if out.Collector.MQTT.Password != "" {
		out.Collector.MQTT.Password = "***"
	}
	return out
}
