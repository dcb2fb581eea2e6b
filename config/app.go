package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/evdnx/spotbot/types"
	"github.com/joho/godotenv"
)

const (
	defaultBybitURL     = "https://api.bybit.com"
	defaultBybitTestURL = "https://api-testnet.bybit.com"
)

// BybitConfig describes one venue account. The gateway is built from it once
// per process; nothing downstream reads credentials from the environment.
type BybitConfig struct {
	BaseURL     string
	APIKey      string
	APISecret   string
	AccountType string
	RecvWindow  int
	Timeout     time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// AppConfig is the process-level configuration read from the environment.
type AppConfig struct {
	Bybit       BybitConfig
	Redis       RedisConfig
	MetricsAddr string
	LogLevel    string
}

// LoadApp loads the optional .env files first (missing files are fine) and
// then reads the environment.
func LoadApp(envFiles ...string) (AppConfig, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return AppConfig{}, fmt.Errorf("load %s: %w", f, err)
			}
		}
	}
	return appFromEnv(os.Getenv)
}

func appFromEnv(getenv func(string) string) (AppConfig, error) {
	cfg := AppConfig{
		Bybit: BybitConfig{
			BaseURL:     getenv("BYBIT_API_URL"),
			APIKey:      getenv("BYBIT_API_KEY"),
			APISecret:   getenv("BYBIT_API_SECRET"),
			AccountType: orDefault(getenv("BYBIT_ACCOUNT_TYPE"), "UNIFIED"),
			RecvWindow:  5000,
			Timeout:     10 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR"),
			Password: getenv("REDIS_PASSWORD"),
			TTL:      time.Hour,
		},
		MetricsAddr: getenv("METRICS_ADDR"),
		LogLevel:    orDefault(getenv("LOG_LEVEL"), "info"),
	}
	if getenv("BYBIT_API_MODE") == "test" {
		cfg.Bybit.BaseURL = orDefault(getenv("BYBIT_API_TEST_URL"), defaultBybitTestURL)
	}
	if cfg.Bybit.BaseURL == "" {
		cfg.Bybit.BaseURL = defaultBybitURL
	}

	var err error
	if v := getenv("BYBIT_RECV_WINDOW"); v != "" {
		if cfg.Bybit.RecvWindow, err = strconv.Atoi(v); err != nil || cfg.Bybit.RecvWindow <= 0 {
			return cfg, fmt.Errorf("%w: BYBIT_RECV_WINDOW=%q", types.ErrInvalidConfig, v)
		}
	}
	if v := getenv("BYBIT_TIMEOUT"); v != "" {
		if cfg.Bybit.Timeout, err = time.ParseDuration(v); err != nil {
			return cfg, fmt.Errorf("%w: BYBIT_TIMEOUT=%q", types.ErrInvalidConfig, v)
		}
	}
	if v := getenv("REDIS_DB"); v != "" {
		if cfg.Redis.DB, err = strconv.Atoi(v); err != nil {
			return cfg, fmt.Errorf("%w: REDIS_DB=%q", types.ErrInvalidConfig, v)
		}
	}
	if v := getenv("INSTRUMENT_CACHE_TTL"); v != "" {
		if cfg.Redis.TTL, err = time.ParseDuration(v); err != nil {
			return cfg, fmt.Errorf("%w: INSTRUMENT_CACHE_TTL=%q", types.ErrInvalidConfig, v)
		}
	}
	return cfg, nil
}

// RequireCredentials fails when signed endpoints cannot be used.
func (c AppConfig) RequireCredentials() error {
	if c.Bybit.APIKey == "" || c.Bybit.APISecret == "" {
		return fmt.Errorf("%w: BYBIT_API_KEY and BYBIT_API_SECRET must be set", types.ErrInvalidConfig)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
