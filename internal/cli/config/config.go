package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the pgmeta configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Migrations MigrationsConfig `mapstructure:"migrations"`
	Log        LogConfig        `mapstructure:"log"`
	Introspect IntrospectConfig `mapstructure:"introspect"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// MigrationsConfig represents where generated migration files go
type MigrationsConfig struct {
	Dir         string `mapstructure:"dir"`
	LedgerTable string `mapstructure:"ledger_table"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// IntrospectConfig represents introspection configuration
type IntrospectConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// ErrNoDatabaseURL is returned when neither DATABASE_URL nor database.url is set
var ErrNoDatabaseURL = errors.New("database URL not configured: set DATABASE_URL or database.url in pgmeta.yml")

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Load loads the configuration from pgmeta.yml or pgmeta.yaml in the working directory
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom loads the configuration from pgmeta.yml or pgmeta.yaml in dir
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("migrations.dir", "migrations")
	v.SetDefault("migrations.ledger_table", "schema_versions")
	v.SetDefault("log.level", "info")
	v.SetDefault("introspect.concurrency", 4)

	v.SetConfigName("pgmeta")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	// PGMETA_LOG_LEVEL overrides log.level
	v.SetEnvPrefix("pgmeta")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DatabaseURL returns the configured database URL or ErrNoDatabaseURL
func (c *Config) DatabaseURL() (string, error) {
	if c.Database.URL == "" {
		return "", ErrNoDatabaseURL
	}
	return c.Database.URL, nil
}

func validateConfig(cfg *Config) error {
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got: %s", cfg.Log.Level)
	}
	if cfg.Introspect.Concurrency <= 0 {
		return fmt.Errorf("introspect.concurrency must be positive, got: %d", cfg.Introspect.Concurrency)
	}
	if cfg.Migrations.Dir == "" {
		return fmt.Errorf("migrations.dir must not be empty")
	}
	if cfg.Migrations.LedgerTable == "" {
		return fmt.Errorf("migrations.ledger_table must not be empty")
	}
	return nil
}
