// Package config loads settings from linksync.yaml, .env and LINKSYNC_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "LINKSYNC"
	ConfigFileName = "linksync"
)

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MigrationConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// StaleAfter is how long the reference backend lets a task sit without progress before cancelling it.
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type CacheConfig struct {
	Backend     string        `mapstructure:"backend"`
	RedisAddr   string        `mapstructure:"redis_addr"`
	TTL         time.Duration `mapstructure:"ttl"`
	Compression string        `mapstructure:"compression"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type StateConfig struct {
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	HTTPPort int    `mapstructure:"http_port"`
	Token    string `mapstructure:"token"`
}

type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Migration MigrationConfig `mapstructure:"migration"`
	Cache     CacheConfig     `mapstructure:"cache"`
	DB        DBConfig        `mapstructure:"db"`
	State     StateConfig     `mapstructure:"state"`
	Server    ServerConfig    `mapstructure:"server"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Log       LogConfig       `mapstructure:"log"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://127.0.0.1:4001/api/v1")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("migration.poll_interval", 2*time.Second)
	v.SetDefault("migration.stale_after", 30*time.Minute)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "127.0.0.1:6379")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.compression", "nop")
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "linksync.db")
	v.SetDefault("state.path", defaultStatePath())
	v.SetDefault("server.http_port", 4001)
	v.SetDefault("server.token", "")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "linksync.migration.notifications")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "linksync-state.db"
	}
	return filepath.Join(dir, "linksync", "state.db")
}

// New returns a viper instance reading the config file from the working
// directory and the user config directory, overridden by the environment.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "linksync"))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the configuration. A missing config file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = New()
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, cfg.Validate()
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	switch c.DB.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("db.driver must be sqlite or postgres, got %q", c.DB.Driver)
	}
	if c.Migration.PollInterval <= 0 {
		return fmt.Errorf("migration.poll_interval must be positive, got %s", c.Migration.PollInterval)
	}
	return nil
}
