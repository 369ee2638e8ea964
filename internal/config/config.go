package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "WALLETOPS"

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	App    AppConfig
	DB     DBConfig
	Wallet WalletConfig
}

type AppConfig struct {
	Env       string `envconfig:"WALLETOPS_APP_ENV" default:"development"`
	Port      string `envconfig:"WALLETOPS_APP_PORT" default:"8080"`
	LogLevel  string `envconfig:"WALLETOPS_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"WALLETOPS_LOG_FORMAT" default:"json"`
}

type DBConfig struct {
	// Driver selects the backing store: postgres for real deployments,
	// memory for local development without a database.
	Driver      string        `envconfig:"WALLETOPS_DB_DRIVER" default:"postgres"`
	DSN         string        `envconfig:"WALLETOPS_DB_DSN"`
	LockTimeout time.Duration `envconfig:"WALLETOPS_DB_LOCK_TIMEOUT" default:"3s"`
}

type WalletConfig struct {
	DefaultAssetCode string `envconfig:"WALLETOPS_DEFAULT_ASSET_CODE" default:"GOLD"`
	TreasuryName     string `envconfig:"WALLETOPS_TREASURY_NAME" default:"Treasury"`
	MaxPageSize      int    `envconfig:"WALLETOPS_MAX_PAGE_SIZE" default:"100"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, "development")
}

// Load reads configuration from the environment, after an optional .env
// file. A missing .env is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("WALLETOPS_DB_DSN is required when the driver is %q", DriverPostgres)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown DB driver %q", c.DB.Driver)
	}
	if c.Wallet.MaxPageSize <= 0 {
		return fmt.Errorf("WALLETOPS_MAX_PAGE_SIZE must be positive")
	}
	return nil
}
