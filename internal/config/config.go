// Package config loads service settings from defaults, an optional YAML
// file, an optional .env file, and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "INGRESS"

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// DatabaseConfig holds PostgreSQL connection settings. The environment
// names are the bare DB_* variables the deployment scripts already set.
type DatabaseConfig struct {
	Host     string `yaml:"host"     envconfig:"DB_HOST"`
	Port     string `yaml:"port"     envconfig:"DB_PORT"`
	User     string `yaml:"user"     envconfig:"DB_USER"`
	Password string `yaml:"password" envconfig:"DB_PASSWORD"`
	DBName   string `yaml:"dbName"   envconfig:"DB_NAME"`
	SSLMode  string `yaml:"sslMode"  envconfig:"DB_SSLMODE"`
	MaxConns int32  `yaml:"maxConns" envconfig:"DB_MAX_CONNS"`
}

// DSN builds a libpq-compatible connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type Config struct {
	BindAddr        string         `yaml:"bindAddr"        split_words:"true"`
	Port            uint           `yaml:"port"            envconfig:"PORT"`
	Store           string         `yaml:"store"`
	SQLitePath      string         `yaml:"sqlitePath"      split_words:"true"`
	PrefsDir        string         `yaml:"prefsDir"        split_words:"true"`
	TokenSecret     string         `yaml:"tokenSecret"     split_words:"true"`
	SessionSecret   string         `yaml:"sessionSecret"   split_words:"true"`
	SessionTTL      time.Duration  `yaml:"sessionTTL"      envconfig:"SESSION_TTL"`
	DebounceWindow  time.Duration  `yaml:"debounceWindow"  split_words:"true"`
	ShutdownTimeout time.Duration  `yaml:"shutdownTimeout" split_words:"true"`
	CORSOrigins     []string       `yaml:"corsOrigins"     envconfig:"CORS_ORIGINS"`
	Database        DatabaseConfig `yaml:"database"        ignored:"true"`
}

// Default returns the local-development defaults.
func Default() *Config {
	return &Config{
		BindAddr:        "0.0.0.0",
		Port:            8080,
		Store:           StorePostgres,
		SQLitePath:      "",
		PrefsDir:        ".ingress/prefs",
		SessionTTL:      12 * time.Hour,
		DebounceWindow:  3 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		CORSOrigins:     []string{"*"},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			DBName:   "ingress",
			SSLMode:  "disable",
			MaxConns: 20,
		},
	}
}

// Load builds the effective configuration. configFile may be empty.
// A missing .env file is not an error.
func Load(configFile string) (*Config, error) {
	cfg := Default()
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	// DB_* are read without the service prefix.
	if err := envconfig.Process("", &cfg.Database); err != nil {
		return nil, fmt.Errorf("error processing database environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres, StoreSQLite:
	default:
		return fmt.Errorf("invalid store: %q (must be %q or %q)", c.Store, StorePostgres, StoreSQLite)
	}
	if c.Port == 0 {
		return errors.New("port must be set")
	}
	if c.DebounceWindow <= 0 {
		return errors.New("debounceWindow must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("sessionTTL must be positive")
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.Port)
}
