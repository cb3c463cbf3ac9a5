package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. SIMSENSOR_SERIAL_PORT.
const EnvPrefix = "SIMSENSOR"

// Config represents the application configuration.
type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Device  DeviceConfig  `yaml:"device"`
	Host    HostConfig    `yaml:"host"`
	Logging LogConfig     `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port           string        `yaml:"port" envconfig:"PORT"`
	BaudRate       int           `yaml:"baud_rate" envconfig:"BAUD_RATE"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" envconfig:"RECONNECT_DELAY"` // Wait between reopen attempts
}

// DeviceConfig contains the simulated device pipeline parameters.
type DeviceConfig struct {
	DataRate   int   `yaml:"data_rate" envconfig:"DATA_RATE"`     // Generation clock (Hz)
	ReadRate   int   `yaml:"read_rate" envconfig:"READ_RATE"`     // Resampler clock (Hz)
	SendRate   int   `yaml:"send_rate" envconfig:"SEND_RATE"`     // Sender clock (Hz)
	MaxRate    int   `yaml:"max_rate" envconfig:"MAX_RATE"`       // Rates above this are clamped
	BufferSize int   `yaml:"buffer_size" envconfig:"BUFFER_SIZE"` // Ring buffer capacity
	TxQueue    int   `yaml:"tx_queue" envconfig:"TX_QUEUE"`       // Pending writes before the sender drops
	Seed       int64 `yaml:"seed" envconfig:"SEED"`               // Random pattern seed (0 = time based)
}

// HostConfig contains host-side harness parameters.
type HostConfig struct {
	DefaultRate     int           `yaml:"default_rate" envconfig:"DEFAULT_RATE"`         // Rate restored between scenarios
	CommandInterval time.Duration `yaml:"command_interval" envconfig:"COMMAND_INTERVAL"` // Settle time per command
	ReadIdle        time.Duration `yaml:"read_idle" envconfig:"READ_IDLE"`               // Silence that ends a read
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// MetricsConfig contains the Prometheus endpoint configuration.
type MetricsConfig struct {
	Addr string `yaml:"addr" envconfig:"ADDR"` // Empty disables the endpoint
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:           "/dev/ttyACM0",
			BaudRate:       115200,
			ReconnectDelay: time.Second,
		},
		Device: DeviceConfig{
			DataRate:   1, // Firmware boots at 1 Hz on every clock
			ReadRate:   1,
			SendRate:   1,
			MaxRate:    1000,
			BufferSize: 10,
			TxQueue:    64,
		},
		Host: HostConfig{
			DefaultRate:     100,
			CommandInterval: time.Second,
			ReadIdle:        20 * time.Millisecond,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file and applies environment overrides.
// If the file doesn't exist or fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
		// File doesn't exist, keep defaults
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing or invalid.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate <= 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.ReconnectDelay <= 0 {
		c.Serial.ReconnectDelay = def.Serial.ReconnectDelay
	}

	if c.Device.MaxRate <= 0 {
		c.Device.MaxRate = def.Device.MaxRate
	}
	if c.Device.DataRate <= 0 {
		c.Device.DataRate = def.Device.DataRate
	}
	if c.Device.ReadRate <= 0 {
		c.Device.ReadRate = def.Device.ReadRate
	}
	if c.Device.SendRate <= 0 {
		c.Device.SendRate = def.Device.SendRate
	}
	if c.Device.BufferSize <= 0 {
		c.Device.BufferSize = def.Device.BufferSize
	}
	if c.Device.TxQueue <= 0 {
		c.Device.TxQueue = def.Device.TxQueue
	}

	if c.Host.DefaultRate <= 0 {
		c.Host.DefaultRate = def.Host.DefaultRate
	}
	if c.Host.CommandInterval <= 0 {
		c.Host.CommandInterval = def.Host.CommandInterval
	}
	if c.Host.ReadIdle <= 0 {
		c.Host.ReadIdle = def.Host.ReadIdle
	}

	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}
