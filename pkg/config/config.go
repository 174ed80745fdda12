package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for contact-reconciler.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Reconciler tuning
	Reconciler ReconcilerConfig `yaml:"reconciler"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"reconciler"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"contact_core"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// ReconcilerConfig holds pipeline thresholds and batching knobs.
type ReconcilerConfig struct {
	// AutoMergeThreshold is the fuzzy score at or above which a suggestion
	// is classified fuzzy_high and becomes eligible for automatic merging.
	AutoMergeThreshold float64 `yaml:"auto_merge_threshold" env:"RECONCILER_AUTO_MERGE_THRESHOLD" env-default:"0.95"`

	// ReviewThreshold is the fuzzy score at or above which a suggestion is
	// persisted for manual review. Scores below it are discarded.
	ReviewThreshold float64 `yaml:"review_threshold" env:"RECONCILER_REVIEW_THRESHOLD" env-default:"0.80"`

	// CheckpointEvery bounds how many records are processed between
	// progress checkpoints during a batch load.
	CheckpointEvery int `yaml:"checkpoint_every" env:"RECONCILER_CHECKPOINT_EVERY" env-default:"500"`

	// SurvivorshipProfilePath points at the YAML tier configuration.
	// Empty means the built-in default profile.
	SurvivorshipProfilePath string `yaml:"survivorship_profile_path" env:"RECONCILER_SURVIVORSHIP_PROFILE" env-default:""`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv reads configuration from environment variables only, for
// deployments without a config file.
func LoadFromEnv(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks threshold ordering and ranges.
func (c *Config) Validate() error {
	r := c.Reconciler
	if r.ReviewThreshold <= 0 || r.ReviewThreshold > 1 {
		return fmt.Errorf("review_threshold %f out of range (0,1]", r.ReviewThreshold)
	}
	if r.AutoMergeThreshold <= 0 || r.AutoMergeThreshold > 1 {
		return fmt.Errorf("auto_merge_threshold %f out of range (0,1]", r.AutoMergeThreshold)
	}
	if r.AutoMergeThreshold < r.ReviewThreshold {
		return fmt.Errorf("auto_merge_threshold %f must not be below review_threshold %f",
			r.AutoMergeThreshold, r.ReviewThreshold)
	}
	if r.CheckpointEvery <= 0 {
		return fmt.Errorf("checkpoint_every must be positive, got %d", r.CheckpointEvery)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
