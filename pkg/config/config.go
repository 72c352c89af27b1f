// Package config loads desktopctl settings from defaults, an optional YAML
// file and DESKTOPCTL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nstogner/desktopctl/pkg/logging"
)

// EnvPrefix prefixes environment overrides, e.g. DESKTOPCTL_RUNNER_MAX_STEPS.
const EnvPrefix = "DESKTOPCTL"

// Config is the full configuration of the desktopctl binaries.
type Config struct {
	Log     logging.Config `mapstructure:"log" yaml:"log"`
	Sandbox SandboxConfig  `mapstructure:"sandbox" yaml:"sandbox"`
	Client  ClientConfig   `mapstructure:"client" yaml:"client"`
	Locator LocatorConfig  `mapstructure:"locator" yaml:"locator"`
	Model   ModelConfig    `mapstructure:"model" yaml:"model"`
	Runner  RunnerConfig   `mapstructure:"runner" yaml:"runner"`
	Server  ServerConfig   `mapstructure:"server" yaml:"server"`
	Store   StoreConfig    `mapstructure:"store" yaml:"store"`
}

type SandboxConfig struct {
	Image             string        `mapstructure:"image" yaml:"image"`
	Host              string        `mapstructure:"host" yaml:"host"`
	ReadinessPath     string        `mapstructure:"readiness_path" yaml:"readiness_path"`
	ReadinessInterval time.Duration `mapstructure:"readiness_interval" yaml:"readiness_interval"`
	ReadinessAttempts int           `mapstructure:"readiness_attempts" yaml:"readiness_attempts"`
}

type ClientConfig struct {
	// URL of the command server. Ignored when a sandbox is started by the
	// same process.
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Transport is "http" (one POST per action) or "ws" (one websocket for
	// the whole run).
	Transport string `mapstructure:"transport" yaml:"transport"`
}

type LocatorConfig struct {
	// Backend is "gemini" or "remote".
	Backend     string `mapstructure:"backend" yaml:"backend"`
	Model       string `mapstructure:"model" yaml:"model"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
	MaxAttempts int    `mapstructure:"max_attempts" yaml:"max_attempts"`
}

type ModelConfig struct {
	// Provider is "gemini" or "grounded".
	Provider     string `mapstructure:"provider" yaml:"provider"`
	Name         string `mapstructure:"name" yaml:"name"`
	Instructions string `mapstructure:"instructions" yaml:"instructions"`
}

type RunnerConfig struct {
	MaxSteps        int  `mapstructure:"max_steps" yaml:"max_steps"`
	ScreenshotAfter bool `mapstructure:"screenshot_after" yaml:"screenshot_after"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	Width           int           `mapstructure:"width" yaml:"width"`
	Height          int           `mapstructure:"height" yaml:"height"`
	Display         string        `mapstructure:"display" yaml:"display"`
	ScreenshotDelay time.Duration `mapstructure:"screenshot_delay" yaml:"screenshot_delay"`
}

type StoreConfig struct {
	// Dir holds run transcripts. Empty disables recording.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// DefaultInstructions steer the gemini provider in model-driven runs.
const DefaultInstructions = "You operate a Linux desktop through the computer tool. " +
	"Take one action at a time, check the screenshot after every action, " +
	"and answer without calling a tool once the task is complete."

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("log.compress", false)

	v.SetDefault("sandbox.image", "controller")
	v.SetDefault("sandbox.host", "127.0.0.1")
	v.SetDefault("sandbox.readiness_path", "/")
	v.SetDefault("sandbox.readiness_interval", "1s")
	v.SetDefault("sandbox.readiness_attempts", 120)

	v.SetDefault("client.url", "http://127.0.0.1:5000")
	v.SetDefault("client.timeout", "60s")
	v.SetDefault("client.transport", "http")

	v.SetDefault("locator.backend", "gemini")
	v.SetDefault("locator.model", "gemini-2.5-flash")
	v.SetDefault("locator.endpoint", "")
	v.SetDefault("locator.max_attempts", 1)

	v.SetDefault("model.provider", "grounded")
	v.SetDefault("model.name", "gemini-2.5-flash")
	v.SetDefault("model.instructions", DefaultInstructions)

	v.SetDefault("runner.max_steps", 25)
	v.SetDefault("runner.screenshot_after", true)

	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.width", 1024)
	v.SetDefault("server.height", 768)
	v.SetDefault("server.display", ":1")
	v.SetDefault("server.screenshot_delay", "0s")

	v.SetDefault("store.dir", ".desktopctl/runs")
}

// NewViper returns a viper instance with defaults and environment bindings.
// path names a config file; when empty, desktopctl.yaml is looked up in the
// working directory.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("desktopctl")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. A missing default config file is not an
// error; a missing explicit one is.
func Load(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	v := NewViper(path)
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper unmarshals and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration built from defaults only.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("unmarshaling default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Sandbox.ReadinessAttempts <= 0 {
		return fmt.Errorf("sandbox.readiness_attempts must be a positive integer")
	}
	if c.Sandbox.ReadinessInterval <= 0 {
		return fmt.Errorf("sandbox.readiness_interval must be a positive duration")
	}
	switch c.Client.Transport {
	case "http", "ws":
	default:
		return fmt.Errorf("client.transport must be http or ws, got %q", c.Client.Transport)
	}
	switch c.Locator.Backend {
	case "gemini":
	case "remote":
		if c.Locator.Endpoint == "" {
			return fmt.Errorf("locator.endpoint is required for the remote backend")
		}
	default:
		return fmt.Errorf("locator.backend must be gemini or remote, got %q", c.Locator.Backend)
	}
	if c.Locator.MaxAttempts <= 0 {
		return fmt.Errorf("locator.max_attempts must be a positive integer")
	}
	switch c.Model.Provider {
	case "gemini", "grounded":
	default:
		return fmt.Errorf("model.provider must be gemini or grounded, got %q", c.Model.Provider)
	}
	if c.Runner.MaxSteps <= 0 {
		return fmt.Errorf("runner.max_steps must be a positive integer")
	}
	if c.Server.Width <= 0 || c.Server.Height <= 0 {
		return fmt.Errorf("server.width and server.height must be positive")
	}
	return nil
}

// GeminiAPIKey returns the key used by the gemini locator and provider.
func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}
