// Package config holds the daemon configuration. Defaults match the
// tuning the controller shipped with; a YAML file may override any field.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds all tunables for the pairing and ranging controller.
type Config struct {
	// DeviceName is the name advertised over BLE.
	DeviceName string `yaml:"device_name" default:"Gabriel's Pilot"`

	// MaxConnectedDevices caps simultaneously tracked peers.
	MaxConnectedDevices int `yaml:"max_connected_devices" default:"8"`

	// MaxDeviceNameLength truncates peer names on registration.
	MaxDeviceNameLength int `yaml:"max_device_name_length" default:"32"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" default:"5s"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" default:"30s"`

	AdvertisingInterval time.Duration `yaml:"advertising_interval" default:"100ms"`

	// UWBSessionTimeout is the hard cap on session lifetime without renewal.
	UWBSessionTimeout time.Duration `yaml:"uwb_session_timeout" default:"60s"`

	// RangingInterval is the expected cadence of UWB measurements.
	RangingInterval time.Duration `yaml:"ranging_interval" default:"100ms"`

	// UWBMinRange and UWBMaxRange bound acceptable measurements in meters.
	UWBMinRange float64 `yaml:"uwb_min_range" default:"0.1"`
	UWBMaxRange float64 `yaml:"uwb_max_range" default:"100"`

	// DebugLevel selects log verbosity: 0=errors, 1=basic, 2=detailed,
	// 3=verbose.
	DebugLevel int `yaml:"debug_level" default:"2"`

	// LoopDelay is the control loop period.
	LoopDelay time.Duration `yaml:"loop_delay" default:"100ms"`

	StatusUpdateInterval time.Duration `yaml:"status_update_interval" default:"5s"`

	// StatusFile is where the run command publishes its latest snapshot
	// for the status command to read. Empty disables publishing.
	StatusFile string `yaml:"status_file" default:"/tmp/pilotd.status"`

	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" default:"3"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay" default:"1s"`
}

// DefaultConfig returns the built-in configuration values.
func DefaultConfig() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	return c
}

// Load reads the YAML file at path on top of the defaults and validates
// the result. An empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	c := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration for values the controller cannot run with.
func (c *Config) Validate() error {
	if c.MaxConnectedDevices <= 0 {
		return fmt.Errorf("max_connected_devices must be > 0, got %d", c.MaxConnectedDevices)
	}
	if c.MaxDeviceNameLength <= 0 {
		return fmt.Errorf("max_device_name_length must be > 0, got %d", c.MaxDeviceNameLength)
	}
	if c.LoopDelay <= 0 {
		return fmt.Errorf("loop_delay must be > 0, got %s", c.LoopDelay)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be > 0, got %s", c.HeartbeatInterval)
	}
	if c.ConnectionTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("connection_timeout (%s) must exceed heartbeat_interval (%s)",
			c.ConnectionTimeout, c.HeartbeatInterval)
	}
	if c.UWBSessionTimeout <= 0 {
		return fmt.Errorf("uwb_session_timeout must be > 0, got %s", c.UWBSessionTimeout)
	}
	if c.UWBMinRange < 0 || c.UWBMaxRange <= c.UWBMinRange {
		return fmt.Errorf("invalid ranging bounds [%v, %v]", c.UWBMinRange, c.UWBMaxRange)
	}
	if c.DebugLevel < 0 || c.DebugLevel > 3 {
		return fmt.Errorf("debug_level must be 0-3, got %d", c.DebugLevel)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max_reconnect_attempts must be >= 0, got %d", c.MaxReconnectAttempts)
	}
	return nil
}

// LogLevel maps the numeric debug level onto a logrus level.
func (c *Config) LogLevel() logrus.Level {
	switch c.DebugLevel {
	case 0:
		return logrus.ErrorLevel
	case 1:
		return logrus.InfoLevel
	case 3:
		return logrus.TraceLevel
	default:
		return logrus.DebugLevel
	}
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel())

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
