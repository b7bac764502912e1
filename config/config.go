/*
config.go - Service configuration

PURPOSE:
  Loads the server configuration from, in increasing precedence:
    1. Built-in defaults
    2. config.yml in the working directory or /etc/labor-ledger (optional)
    3. .env file (loaded into the process environment)
    4. LABOR_* environment variables (LABOR_DB_DSN -> db.dsn)
  Command-line flags are applied on top by cmd/server.

KEYS:
  http.port                  HTTP listen port
  db.driver                  sqlite3 | postgres
  db.dsn                     SQLite path (":memory:" allowed) or Postgres URL
  redis.addr                 enables the Redis lock when set
  log.level, log.format      zap level and encoding (json | console)
  reconciler.max_attempts    optimistic retries per time entry mutation
  reconciler.lock_ttl        Redis lock expiry
  cors.allowed_origins       comma separated in env form
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LABOR"

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
	CORS       CORSConfig       `mapstructure:"cors"`
}

type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ReconcilerConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("db.driver", "sqlite3")
	v.SetDefault("db.dsn", "labor.db")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("reconciler.max_attempts", 3)
	v.SetDefault("reconciler.lock_ttl", 10*time.Second)
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173", "http://localhost:8080"})
}

// Load reads the configuration. configFile, when non-empty, names an
// explicit file that must exist.
func Load(configFile string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/labor-ledger")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.DB.DSN == "" {
		return errors.New("db.dsn is required")
	}
	if c.Reconciler.MaxAttempts < 1 {
		return fmt.Errorf("reconciler.max_attempts must be at least 1, got %d", c.Reconciler.MaxAttempts)
	}
	return nil
}
