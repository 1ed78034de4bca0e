// Package config loads markerservo settings from defaults, an optional
// config file, MARKERSERVO_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/teslashibe/markerservo/pkg/camera"
)

const (
	// FileName is the config file looked up when none is given (any
	// extension viper understands).
	FileName  = "markerservo"
	EnvPrefix = "MARKERSERVO"
)

// Config is the full application configuration.
type Config struct {
	Camera    camera.Config   `mapstructure:"camera"`
	Serial    SerialConfig    `mapstructure:"serial"`
	Debounce  DebounceConfig  `mapstructure:"debounce"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Display   DisplayConfig   `mapstructure:"display"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	History   HistoryConfig   `mapstructure:"history"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Log       LogConfig       `mapstructure:"log"`
}

// SerialConfig configures the actuator link.
type SerialConfig struct {
	Port   string        `mapstructure:"port"` // e.g. /dev/ttyACM0 or COM5
	Baud   int           `mapstructure:"baud"`
	Settle time.Duration `mapstructure:"settle"` // wait after open; the board resets
}

// DebounceConfig configures the state machine.
type DebounceConfig struct {
	Cooldown    time.Duration `mapstructure:"cooldown"`
	HoldOnStart bool          `mapstructure:"hold_on_start"`
}

type DetectorConfig struct {
	Dictionary string `mapstructure:"dictionary"`
}

type DisplayConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Window  string `mapstructure:"window"`
}

type DashboardConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	StreamFPS int    `mapstructure:"stream_fps"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// NATSConfig configures transition publishing. An empty URL disables it.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Message
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// SetDefaults registers every key with its default value. Keys must be
// known to viper for environment overrides to apply on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("camera.device", 0)
	v.SetDefault("camera.width", 0)
	v.SetDefault("camera.height", 0)
	v.SetDefault("camera.framerate", 0)
	v.SetDefault("camera.preset", "")

	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", 9600)
	v.SetDefault("serial.settle", 2*time.Second)

	v.SetDefault("debounce.cooldown", 2*time.Second)
	v.SetDefault("debounce.hold_on_start", false)

	v.SetDefault("detector.dictionary", "4x4_250")

	v.SetDefault("display.enabled", true)
	v.SetDefault("display.window", "Frame")

	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.host", "")
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("dashboard.stream_fps", 10)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", "markerservo.db")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "markerservo.commands")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration into v and decodes it. If file is empty,
// markerservo.{yaml,json,toml} is looked up in the working directory and a
// missing file is not an error. A .env file in the working directory is
// loaded into the environment first.
func Load(v *viper.Viper, file string) (*Config, error) {
	// Existing environment variables win over .env
	_ = godotenv.Load()

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, &ConfigError{Message: "error reading config file", Err: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Message: "error decoding config", Err: err}
	}

	// A preset replaces the capture mode but keeps the device index
	if name := strings.ToLower(v.GetString("camera.preset")); name != "" {
		mode, ok := camera.ApplyPreset(cfg.Camera, name)
		if !ok {
			return nil, &ConfigError{
				Field:   "camera.preset",
				Message: fmt.Sprintf("unknown preset %q (one of %s)", name, strings.Join(camera.PresetNames(), ", ")),
			}
		}
		cfg.Camera = mode
	}
	return &cfg, nil
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.Serial.Port == "" {
		return &ConfigError{Field: "serial.port", Message: "a serial port is required (e.g. /dev/ttyACM0 or COM5); run `markerservo ports` to list them"}
	}
	if c.Serial.Baud <= 0 {
		return &ConfigError{Field: "serial.baud", Message: fmt.Sprintf("must be positive, got %d", c.Serial.Baud)}
	}
	if c.Serial.Settle < 0 {
		return &ConfigError{Field: "serial.settle", Message: "must not be negative"}
	}
	if c.Debounce.Cooldown <= 0 {
		return &ConfigError{Field: "debounce.cooldown", Message: fmt.Sprintf("must be positive, got %s", c.Debounce.Cooldown)}
	}
	if errs := c.Camera.Validate(); len(errs) > 0 {
		return &ConfigError{Field: "camera", Message: strings.Join(errs, "; ")}
	}
	if c.Dashboard.Enabled && (c.Dashboard.Port < 1 || c.Dashboard.Port > 65535) {
		return &ConfigError{Field: "dashboard.port", Message: fmt.Sprintf("must be 1-65535, got %d", c.Dashboard.Port)}
	}
	if c.Dashboard.StreamFPS < 0 {
		return &ConfigError{Field: "dashboard.stream_fps", Message: "must not be negative"}
	}
	if c.History.Enabled && c.History.Path == "" {
		return &ConfigError{Field: "history.path", Message: "required when history is enabled"}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ConfigError{Field: "log.level", Message: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return &ConfigError{Field: "log.format", Message: fmt.Sprintf("must be text or json, got %q", c.Log.Format)}
	}
	return nil
}
