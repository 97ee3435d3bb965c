// Package config loads service settings from the environment, an optional
// .env file and an optional config file named by FINTRACK_CONFIG.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/govalues/money"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backends accepted by DATA_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Config struct {
	Port            string        `mapstructure:"port"`
	DataBackend     string        `mapstructure:"data_backend"`
	DatabaseURL     string        `mapstructure:"database_url"`
	SQLiteDBPath    string        `mapstructure:"sqlite_db_path"`
	Currency        string        `mapstructure:"currency"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	DevSeed         bool          `mapstructure:"dev_seed"`
	AuthJWTSecret   string        `mapstructure:"auth_jwt_secret"`
	AMQPURL         string        `mapstructure:"amqp_url"`
	AMQPExchange    string        `mapstructure:"amqp_exchange"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

var defaults = map[string]any{
	"port":             "8080",
	"data_backend":     BackendMemory,
	"database_url":     "",
	"sqlite_db_path":   "./fintrack.db",
	"currency":         "BRL",
	"log_level":        "info",
	"log_format":       "json",
	"dev_seed":         false,
	"auth_jwt_secret":  "",
	"amqp_url":         "",
	"amqp_exchange":    "fintrack",
	"shutdown_timeout": 10 * time.Second,
}

// Load reads .env (when present), then FINTRACK_CONFIG (when set), then the
// process environment. Later sources win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
		// AutomaticEnv only resolves keys viper already knows about.
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, err
		}
	}
	if path := strings.TrimSpace(os.Getenv("FINTRACK_CONFIG")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.DataBackend = strings.ToLower(strings.TrimSpace(c.DataBackend))
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	return &c, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DataBackend {
	case BackendMemory:
	case BackendPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			problems = append(problems, "postgres backend requires DATABASE_URL")
		}
	case BackendSQLite:
		if strings.TrimSpace(c.SQLiteDBPath) == "" {
			problems = append(problems, "sqlite backend requires SQLITE_DB_PATH")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid data backend '%s': must be one of [memory postgres sqlite]", c.DataBackend))
	}

	if _, err := money.ParseCurr(c.Currency); err != nil {
		problems = append(problems, fmt.Sprintf("invalid currency '%s'", c.Currency))
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be json or text", c.LogFormat))
	}

	if c.AMQPURL != "" && strings.TrimSpace(c.AMQPExchange) == "" {
		problems = append(problems, "AMQP_EXCHANGE is required when AMQP_URL is set")
	}

	if c.ShutdownTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("invalid shutdown timeout %v: must be positive", c.ShutdownTimeout))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// Level maps LOG_LEVEL to a slog level; unknown values mean info.
func (c *Config) Level() slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger builds the process logger (JSON unless LOG_FORMAT=text).
func (c *Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if strings.EqualFold(strings.TrimSpace(c.LogFormat), "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
