// Package config loads the server configuration from layered sources:
// built-in defaults, an optional YAML file, then ATRIUM_* environment
// variables. Later layers override earlier ones.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/atrium-sh/atrium/pkg/logging"
)

// EnvPrefix namespaces the environment variables read by Load.
// ATRIUM_SERVER_PORT maps to server.port, ATRIUM_LOG_LEVEL to log.level.
const EnvPrefix = "ATRIUM_"

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "ATRIUM_CONFIG"

// DefaultConfigPaths lists where config files are searched, first hit wins.
var DefaultConfigPaths = []string{
	"atrium.yaml",
	"atrium.yml",
	"/etc/atrium/atrium.yaml",
	"/etc/atrium/atrium.yml",
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ProbeConfig controls app reachability checks.
type ProbeConfig struct {
	// Timeout bounds a single reachability check.
	Timeout time.Duration `koanf:"timeout"`
	// Interval is the delay between status sweeps.
	Interval time.Duration `koanf:"interval"`
}

// WeatherConfig controls the forecast cache.
type WeatherConfig struct {
	Refresh time.Duration `koanf:"refresh"`
}

// SearchConfig controls city autocomplete behavior.
type SearchConfig struct {
	Debounce   time.Duration `koanf:"debounce"`
	MinChars   int           `koanf:"minchars"`
	MaxResults int           `koanf:"maxresults"`
}

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig   `koanf:"server"`
	Data    string         `koanf:"data"`
	Static  string         `koanf:"static"`
	Volume  string         `koanf:"volume"`
	Probe   ProbeConfig    `koanf:"probe"`
	Weather WeatherConfig  `koanf:"weather"`
	Search  SearchConfig   `koanf:"search"`
	Log     logging.Config `koanf:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8087,
		},
		Data:   "data/config.json",
		Static: "public",
		Volume: "/",
		Probe: ProbeConfig{
			Timeout:  3 * time.Second,
			Interval: 10 * time.Second,
		},
		Weather: WeatherConfig{
			Refresh: 10 * time.Minute,
		},
		Search: SearchConfig{
			Debounce:   300 * time.Millisecond,
			MinChars:   2,
			MaxResults: 5,
		},
		Log: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// the environment, then validates it.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is Load with an explicit config file path. The file must exist.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	return load(path)
}

func load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envTransform maps ATRIUM_SERVER_PORT to server.port. Leaf keys contain no
// underscores so the substitution is unambiguous.
func envTransform(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	if key == "CONFIG" {
		// Reserved for the file path override, not a config key.
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(key), "_", ".")
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range 1-65535", c.Server.Port)
	}
	if c.Data == "" {
		return fmt.Errorf("data path must not be empty")
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be positive, got %v", c.Probe.Timeout)
	}
	if c.Probe.Interval <= 0 {
		return fmt.Errorf("probe.interval must be positive, got %v", c.Probe.Interval)
	}
	if c.Weather.Refresh <= 0 {
		return fmt.Errorf("weather.refresh must be positive, got %v", c.Weather.Refresh)
	}
	if c.Search.Debounce < 0 {
		return fmt.Errorf("search.debounce must not be negative, got %v", c.Search.Debounce)
	}
	if c.Search.MinChars < 1 {
		return fmt.Errorf("search.minchars must be at least 1, got %d", c.Search.MinChars)
	}
	if c.Search.MaxResults < 1 {
		return fmt.Errorf("search.maxresults must be at least 1, got %d", c.Search.MaxResults)
	}
	return nil
}
