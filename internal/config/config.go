package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Collect   CollectConfig   `mapstructure:"collect"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Events    EventsConfig    `mapstructure:"events"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	JWTSecret string          `mapstructure:"jwt_secret"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"` // "dev" or "prod"
}

// RulesConfig tunes the editing-rule interpreter.
type RulesConfig struct {
	// NumericCoercion makes comparisons between a numeric-looking string and a
	// number compare numerically instead of failing as a type mismatch.
	NumericCoercion bool `mapstructure:"numeric_coercion"`
}

type CollectConfig struct {
	MaxRetries int `mapstructure:"max_retries"`
}

// AnalyticsConfig points at the external BI service used for ad-hoc SQL.
type AnalyticsConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	DatabaseID int           `mapstructure:"database_id"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type EventsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	Stream        string `mapstructure:"stream"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ConnString returns the PostgreSQL connection string.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// Load reads app.yaml from the working directory (or ../..) unless an explicit
// file is given. Environment variables prefixed SURVEY_ override file values,
// e.g. SURVEY_DATABASE_HOST.
func Load(file string) (*Config, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("app")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("../..")
	}

	setDefaults(v)

	v.SetEnvPrefix("survey")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "survey")
	v.SetDefault("database.name", "survey")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("log.mode", "dev")
	v.SetDefault("rules.numeric_coercion", true)
	v.SetDefault("collect.max_retries", 3)
	v.SetDefault("analytics.enabled", false)
	v.SetDefault("analytics.timeout", 30*time.Second)
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.url", "nats://localhost:4222")
	v.SetDefault("events.stream", "SURVEY")
	v.SetDefault("events.subject_prefix", "survey")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("jwt_secret", "changeme-secret")
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Database.PoolSize <= 0 {
		return fmt.Errorf("database.pool_size must be positive")
	}
	if c.Collect.MaxRetries <= 0 {
		return fmt.Errorf("collect.max_retries must be positive")
	}
	if c.Analytics.Enabled && c.Analytics.URL == "" {
		return fmt.Errorf("analytics.url is required when analytics is enabled")
	}
	if c.Events.Enabled && c.Events.URL == "" {
		return fmt.Errorf("events.url is required when events are enabled")
	}
	return nil
}
