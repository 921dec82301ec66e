// Package config reads server settings from the environment through viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	App  AppConfig
	Log  LogConfig
	HTTP HTTPConfig
	DB   DBConfig
	// LockTimeout bounds how long a write waits for item and batch locks.
	LockTimeout time.Duration
	SeedFile    string
	// ExpirySweepInterval is the period of the background expiry write-off;
	// zero disables it.
	ExpirySweepInterval time.Duration
	LowStockThreshold   decimal.Decimal
}

type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

type LogConfig struct {
	Level string
}

type HTTPConfig struct {
	Host string
	Port int
}

func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Driver selects the store backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

type DBConfig struct {
	Driver      Driver
	Path        string // sqlite file
	DatabaseURL string // postgres connection string
}

// Load reads APP_ENV, APP_NAME, LOG_LEVEL, HTTP_HOST, HTTP_PORT, DB_DRIVER,
// DB_PATH, DATABASE_URL, LOCK_TIMEOUT, SEED_FILE, EXPIRY_SWEEP_INTERVAL and
// LOW_STOCK_THRESHOLD. An optional config.env in
// the working directory is read first; the environment wins.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:  v.GetString("APP_ENV"),
			Name: v.GetString("APP_NAME"),
		},
		Log:  LogConfig{Level: v.GetString("LOG_LEVEL")},
		HTTP: HTTPConfig{Host: v.GetString("HTTP_HOST"), Port: v.GetInt("HTTP_PORT")},
		DB: DBConfig{
			Driver:      Driver(strings.ToLower(v.GetString("DB_DRIVER"))),
			Path:        v.GetString("DB_PATH"),
			DatabaseURL: v.GetString("DATABASE_URL"),
		},
		LockTimeout:         v.GetDuration("LOCK_TIMEOUT"),
		SeedFile:            v.GetString("SEED_FILE"),
		ExpirySweepInterval: v.GetDuration("EXPIRY_SWEEP_INTERVAL"),
	}
	threshold, err := decimal.NewFromString(v.GetString("LOW_STOCK_THRESHOLD"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid LOW_STOCK_THRESHOLD: %w", err)
	}
	cfg.LowStockThreshold = threshold
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "batch-ledger")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("DB_DRIVER", string(DriverSQLite))
	v.SetDefault("DB_PATH", "ledger.db")
	v.SetDefault("LOCK_TIMEOUT", "5s")
	v.SetDefault("EXPIRY_SWEEP_INTERVAL", "1h")
	v.SetDefault("LOW_STOCK_THRESHOLD", "5")
}

func (c *Config) Validate() error {
	switch c.DB.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DB.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.DB.Driver)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("config: invalid HTTP_PORT %d", c.HTTP.Port)
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("config: LOCK_TIMEOUT must not be negative")
	}
	if c.ExpirySweepInterval < 0 {
		return fmt.Errorf("config: EXPIRY_SWEEP_INTERVAL must not be negative")
	}
	if c.LowStockThreshold.IsNegative() {
		return fmt.Errorf("config: LOW_STOCK_THRESHOLD must not be negative")
	}
	return nil
}
