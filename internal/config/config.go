package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rcarmo/go-devscreen/internal/framebuffer"
)

// maxReconnectSeconds is the largest window that still fits a time.Duration.
const maxReconnectSeconds = float64(math.MaxInt64 / int64(time.Second))

// globalConfig stores the configuration loaded with command-line overrides
// This allows other packages to access the same configuration that was loaded by the CLI
var (
	globalConfig *Config
	configMutex  sync.Mutex
)

// ErrMissingDeviceURL is returned by Validate when no device address is set.
var ErrMissingDeviceURL = errors.New("device url cannot be empty")

// Config holds the application configuration
type Config struct {
	Device  DeviceConfig  `json:"device" yaml:"device"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// LoadOptions holds command-line override options. Zero values mean "not set".
type LoadOptions struct {
	URL              string
	Width            int
	Height           int
	ReconnectSeconds *float64
	Debug            bool
	ClearOnReconnect bool
	Host             string
	Port             string
	Listen           string
	LogLevel         string
	ConfigFile       string
}

// DeviceConfig describes the remote device connection
type DeviceConfig struct {
	URL              string        `json:"url" yaml:"url" env:"DEVICE_URL" default:""`
	Width            int           `json:"width" yaml:"width" env:"DEVICE_WIDTH" default:"320"`
	Height           int           `json:"height" yaml:"height" env:"DEVICE_HEIGHT" default:"240"`
	ReconnectSeconds float64       `json:"reconnectSeconds" yaml:"reconnectSeconds" env:"DEVICE_RECONNECT_SECONDS" default:"2"`
	Debug            bool          `json:"debug" yaml:"debug" env:"DEVICE_DEBUG" default:"false"`
	ClearOnReconnect bool          `json:"clearOnReconnect" yaml:"clearOnReconnect" env:"DEVICE_CLEAR_ON_RECONNECT" default:"false"`
	HandshakeTimeout time.Duration `json:"handshakeTimeout" yaml:"handshakeTimeout" env:"DEVICE_HANDSHAKE_TIMEOUT" default:"10s"`
	WriteTimeout     time.Duration `json:"writeTimeout" yaml:"writeTimeout" env:"DEVICE_WRITE_TIMEOUT" default:"2s"`
	ReadLimit        int64         `json:"readLimit" yaml:"readLimit" env:"DEVICE_READ_LIMIT" default:"4194304"`
}

// ReconnectDelay returns the reconnect jitter window; zero disables reconnects.
func (d DeviceConfig) ReconnectDelay() time.Duration {
	return time.Duration(d.ReconnectSeconds * float64(time.Second))
}

// ServerConfig holds the HTTP presentation server configuration
type ServerConfig struct {
	Host         string        `json:"host" yaml:"host" env:"SERVER_HOST" default:"127.0.0.1"`
	Port         string        `json:"port" yaml:"port" env:"SERVER_PORT" default:"7377"`
	ReadTimeout  time.Duration `json:"readTimeout" yaml:"readTimeout" env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `json:"writeTimeout" yaml:"writeTimeout" env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `json:"idleTimeout" yaml:"idleTimeout" env:"SERVER_IDLE_TIMEOUT" default:"120s"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `json:"level" yaml:"level" env:"LOG_LEVEL" default:"info"`
}

// EffectiveLogLevel returns the level to log at; device debug forces "debug".
func (c *Config) EffectiveLogLevel() string {
	if c.Device.Debug {
		return "debug"
	}
	return c.Logging.Level
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Width:            320,
			Height:           240,
			ReconnectSeconds: 2,
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     2 * time.Second,
			ReadLimit:        4 << 20,
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         "7377",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	return LoadWithOverrides(LoadOptions{})
}

// LoadWithOverrides loads configuration with command-line overrides.
// Precedence, highest first: overrides, environment, config file, defaults.
func LoadWithOverrides(opts LoadOptions) (*Config, error) {
	config := Default()

	configFile := getOverrideOrEnv(opts.ConfigFile, "CONFIG_FILE", "")
	if configFile != "" {
		if err := loadFile(configFile, config); err != nil {
			return nil, err
		}
	}

	// Device config
	config.Device.URL = getOverrideOrEnv(opts.URL, "DEVICE_URL", config.Device.URL)
	config.Device.Width = getIntOverrideOrEnv(opts.Width, "DEVICE_WIDTH", config.Device.Width)
	config.Device.Height = getIntOverrideOrEnv(opts.Height, "DEVICE_HEIGHT", config.Device.Height)
	config.Device.ReconnectSeconds = getFloatWithDefault("DEVICE_RECONNECT_SECONDS", config.Device.ReconnectSeconds)
	if opts.ReconnectSeconds != nil {
		config.Device.ReconnectSeconds = *opts.ReconnectSeconds
	}
	config.Device.Debug = getBoolWithDefault("DEVICE_DEBUG", config.Device.Debug) || opts.Debug
	config.Device.ClearOnReconnect = getBoolWithDefault("DEVICE_CLEAR_ON_RECONNECT", config.Device.ClearOnReconnect) || opts.ClearOnReconnect
	config.Device.HandshakeTimeout = getDurationWithDefault("DEVICE_HANDSHAKE_TIMEOUT", config.Device.HandshakeTimeout)
	config.Device.WriteTimeout = getDurationWithDefault("DEVICE_WRITE_TIMEOUT", config.Device.WriteTimeout)
	config.Device.ReadLimit = int64(getIntWithDefault("DEVICE_READ_LIMIT", int(config.Device.ReadLimit)))

	// Server config; explicit host/port win over the listen address
	if opts.Listen != "" {
		host, port, err := net.SplitHostPort(opts.Listen)
		if err != nil {
			return nil, fmt.Errorf("invalid listen address %q: %w", opts.Listen, err)
		}
		if opts.Host == "" {
			opts.Host = host
		}
		if opts.Port == "" {
			opts.Port = port
		}
	}
	config.Server.Host = getOverrideOrEnv(opts.Host, "SERVER_HOST", config.Server.Host)
	config.Server.Port = getOverrideOrEnv(opts.Port, "SERVER_PORT", config.Server.Port)
	config.Server.ReadTimeout = getDurationWithDefault("SERVER_READ_TIMEOUT", config.Server.ReadTimeout)
	config.Server.WriteTimeout = getDurationWithDefault("SERVER_WRITE_TIMEOUT", config.Server.WriteTimeout)
	config.Server.IdleTimeout = getDurationWithDefault("SERVER_IDLE_TIMEOUT", config.Server.IdleTimeout)

	// Logging config
	config.Logging.Level = getOverrideOrEnv(opts.LogLevel, "LOG_LEVEL", config.Logging.Level)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Store the configuration globally so other packages can access it
	configMutex.Lock()
	globalConfig = config
	configMutex.Unlock()

	return config, nil
}

// GetGlobalConfig returns the globally stored configuration
func GetGlobalConfig() *Config {
	configMutex.Lock()
	defer configMutex.Unlock()
	return globalConfig
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate device config
	if c.Device.URL == "" {
		return ErrMissingDeviceURL
	}

	u, err := url.Parse(c.Device.URL)
	if err != nil {
		return fmt.Errorf("invalid device url: %w", err)
	}

	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("device url must use ws or wss scheme: %s", c.Device.URL)
	}

	if u.Host == "" {
		return fmt.Errorf("device url has no host: %s", c.Device.URL)
	}

	if c.Device.Width <= 0 || c.Device.Height <= 0 {
		return fmt.Errorf("device dimensions must be positive")
	}

	if c.Device.Width > framebuffer.MaxDimension || c.Device.Height > framebuffer.MaxDimension {
		return fmt.Errorf("device dimensions %dx%d exceed maximum %d", c.Device.Width, c.Device.Height, framebuffer.MaxDimension)
	}

	if math.IsNaN(c.Device.ReconnectSeconds) || math.IsInf(c.Device.ReconnectSeconds, 0) {
		return fmt.Errorf("reconnect seconds must be a finite number")
	}

	if c.Device.ReconnectSeconds < 0 {
		return fmt.Errorf("reconnect seconds cannot be negative")
	}

	if c.Device.ReconnectSeconds > maxReconnectSeconds {
		return fmt.Errorf("reconnect seconds cannot exceed %.0f", maxReconnectSeconds)
	}

	if c.Device.ReadLimit < 0 {
		return fmt.Errorf("read limit cannot be negative")
	}

	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getOverrideOrEnv returns command-line override value, env value, or default
func getOverrideOrEnv(override, envKey, defaultValue string) string {
	if override != "" {
		return override
	}
	return getEnvWithDefault(envKey, defaultValue)
}

func getIntOverrideOrEnv(override int, envKey string, defaultValue int) int {
	if override != 0 {
		return override
	}
	return getIntWithDefault(envKey, defaultValue)
}
