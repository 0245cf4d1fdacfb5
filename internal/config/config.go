package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/dyluth/signboard/pkg/signboard"
)

// Defaults applied by Validate when a field is left empty.
const (
	DefaultSession    = "default"
	DefaultRedisURL   = "redis://localhost:6379/0"
	DefaultMQTTBroker = "tcp://localhost:1883"
	DefaultNameFormat = "Signboard %d"
	DefaultFileName   = "signboards.json"
	DefaultSQLiteName = "signboards.db"
)

// Bus backends
const (
	BusRedis  = "redis"
	BusMQTT   = "mqtt"
	BusMemory = "memory"
)

// Store backends
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Session names end up inside topic names and keys, so keep them simple
var sessionPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Config is the process-wide configuration, built once at start and passed
// to the components that need it.
type Config struct {
	Session  string         `yaml:"session" env:"SIGNBOARD_SESSION"`
	Bus      BusConfig      `yaml:"bus"`
	Store    StoreConfig    `yaml:"store"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Health   HealthConfig   `yaml:"health"`
}

// BusConfig selects and configures the message bus.
type BusConfig struct {
	Backend      string `yaml:"backend" env:"SIGNBOARD_BUS"`              // redis, mqtt or memory
	RedisURL     string `yaml:"redis_url" env:"SIGNBOARD_BUS_REDIS_URL"` // redis://host:port/db
	MQTTBroker   string `yaml:"mqtt_broker" env:"SIGNBOARD_BUS_MQTT_BROKER"`
	MQTTClientID string `yaml:"mqtt_client_id,omitempty" env:"SIGNBOARD_BUS_MQTT_CLIENT_ID"` // generated per process when empty
}

// StoreConfig selects and configures snapshot persistence.
type StoreConfig struct {
	Backend  string `yaml:"backend" env:"SIGNBOARD_STORE"` // file, redis, sqlite or memory
	Path     string `yaml:"path,omitempty" env:"SIGNBOARD_STORE_PATH"`
	RedisURL string `yaml:"redis_url,omitempty" env:"SIGNBOARD_STORE_REDIS_URL"`
}

// DefaultsConfig holds the values applied to newly created signboards.
type DefaultsConfig struct {
	TextColor  string `yaml:"text_color" env:"SIGNBOARD_TEXT_COLOR"`
	NameFormat string `yaml:"name_format" env:"SIGNBOARD_NAME_FORMAT"` // must contain one %d
}

// HealthConfig configures the host's health and metrics endpoint.
// An empty address disables the server.
type HealthConfig struct {
	Addr string `yaml:"addr" env:"SIGNBOARD_HEALTH_ADDR"`
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	// An empty config only fails when no user config directory exists, in
	// which case Store.Path stays empty
	_ = cfg.Validate()
	return cfg
}

// TextColor returns the configured default text color.
// Only valid after Validate.
func (c *Config) TextColor() signboard.TextColor {
	return signboard.TextColor(c.Defaults.TextColor)
}

// Validate applies defaults and checks every field.
func (c *Config) Validate() error {
	if c.Session == "" {
		c.Session = DefaultSession
	}
	if !sessionPattern.MatchString(c.Session) {
		return fmt.Errorf("invalid session %q: only letters, digits, '.', '_' and '-' are allowed", c.Session)
	}

	if c.Defaults.TextColor == "" {
		c.Defaults.TextColor = string(signboard.DefaultTextColor)
	}
	color, err := signboard.ParseTextColor(c.Defaults.TextColor)
	if err != nil {
		return fmt.Errorf("defaults.text_color: %w", err)
	}
	c.Defaults.TextColor = string(color)

	if c.Defaults.NameFormat == "" {
		c.Defaults.NameFormat = DefaultNameFormat
	}
	if strings.Count(c.Defaults.NameFormat, "%d") != 1 || strings.Count(c.Defaults.NameFormat, "%") != 1 {
		return fmt.Errorf("defaults.name_format must contain exactly one %%d verb, got %q", c.Defaults.NameFormat)
	}

	if err := c.Bus.validate(); err != nil {
		return err
	}
	return c.Store.validate()
}

func (b *BusConfig) validate() error {
	if b.Backend == "" {
		b.Backend = BusRedis
	}

	switch b.Backend {
	case BusRedis:
		if b.RedisURL == "" {
			b.RedisURL = DefaultRedisURL
		}
	case BusMQTT:
		if b.MQTTBroker == "" {
			b.MQTTBroker = DefaultMQTTBroker
		}
	case BusMemory:
	default:
		return fmt.Errorf("invalid bus backend: %s (must be 'redis', 'mqtt' or 'memory')", b.Backend)
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if s.Backend == "" {
		s.Backend = StoreFile
	}

	switch s.Backend {
	case StoreFile, StoreSQLite:
		if s.Path == "" {
			dir, err := defaultDataDir()
			if err != nil {
				return fmt.Errorf("store.path not set and no default location available: %w", err)
			}
			name := DefaultFileName
			if s.Backend == StoreSQLite {
				name = DefaultSQLiteName
			}
			s.Path = filepath.Join(dir, name)
		}
	case StoreRedis:
		if s.RedisURL == "" {
			s.RedisURL = DefaultRedisURL
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid store backend: %s (must be 'file', 'redis', 'sqlite' or 'memory')", s.Backend)
	}
	return nil
}

func defaultDataDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "signboard"), nil
}

// Load reads the YAML file at path, applies SIGNBOARD_* environment overrides
// and validates the result. An empty path or a missing file yields the
// defaults, still subject to environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML: %w", err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
