package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ErrDatabaseURLRequired is returned when a command needs the audit store
// and DATABASE_URL is unset.
var ErrDatabaseURLRequired = errors.New("DATABASE_URL is required")

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Configure config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	// 3. Environment variables
	// WALLETD_PRICE_BASE_URL -> price.base_url
	v.SetEnvPrefix("WALLETD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed aliases for the settings most often set by deployment tooling
	v.BindEnv("log_level", "WALLETD_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("server.port", "WALLETD_SERVER_PORT", "HTTP_PORT")
	v.BindEnv("server.allowed_origins", "WALLETD_SERVER_ALLOWED_ORIGINS", "ALLOWED_ORIGINS")
	v.BindEnv("price.stablecoins", "WALLETD_PRICE_STABLECOINS", "STABLECOINS")
	v.BindEnv("price.warm_schedule", "WALLETD_PRICE_WARM_SCHEDULE", "WARM_SCHEDULE")
	v.BindEnv("price.warm_symbols", "WALLETD_PRICE_WARM_SYMBOLS")
	v.BindEnv("price.timezone", "WALLETD_PRICE_TIMEZONE", "TIMEZONE")
	v.BindEnv("approval.disconnect_on_reject", "WALLETD_APPROVAL_DISCONNECT_ON_REJECT")

	// 4. Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// 5. Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Comma-separated lists from env vars
	cfg.Server.AllowedOrigins = splitList(v.GetString("server.allowed_origins"), cfg.Server.AllowedOrigins)
	cfg.Price.Stablecoins = splitList(v.GetString("price.stablecoins"), cfg.Price.Stablecoins)
	cfg.Price.WarmSymbols = splitList(v.GetString("price.warm_symbols"), cfg.Price.WarmSymbols)

	// 6. Validate with validator
	validate := NewValidator()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("rpc.cooldown", "30s")

	v.SetDefault("balance.concurrency", 0)
	v.SetDefault("balance.query_timeout", "10s")

	v.SetDefault("price.base_url", "https://api.binance.com")
	v.SetDefault("price.stablecoins", []string{"USDT", "USDC"})
	v.SetDefault("price.cache_ttl", "2m")
	v.SetDefault("price.timeout", "5s")
	v.SetDefault("price.rate_limit", 10)
	v.SetDefault("price.burst", 5)
	v.SetDefault("price.concurrency", 8)
	v.SetDefault("price.warm_schedule", "5m")
	v.SetDefault("price.warm_symbols", []string{})
	v.SetDefault("price.timezone", "UTC")

	v.SetDefault("session.debounce", "1s")
	v.SetDefault("session.granularity", "address_chain")

	v.SetDefault("approval.switch_timeout", "10s")
	v.SetDefault("approval.poll_interval", "2s")
	v.SetDefault("approval.poll_max_interval", "16s")
	v.SetDefault("approval.poll_timeout", "3m")
	v.SetDefault("approval.poll_max_attempts", 30)
	v.SetDefault("approval.disconnect_on_reject", false)

	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.delivery_timeout", "5s")

	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.max_message_bytes", 65536)
}

// splitList parses a comma-separated env value. Values without a comma
// were already decoded by viper and are kept.
func splitList(raw string, current []string) []string {
	if !strings.Contains(raw, ",") {
		return current
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadWithDefaults loads config and the optional DATABASE_URL. An empty URL
// disables the audit store.
func LoadWithDefaults(configPath string) (*Config, string, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, DatabaseURL(), nil
}

// DatabaseURL returns DATABASE_URL, or WALLETD_DATABASE_URL when unset.
func DatabaseURL() string {
	v := viper.New()
	v.BindEnv("database_url", "DATABASE_URL", "WALLETD_DATABASE_URL")
	return v.GetString("database_url")
}

// RequireDatabaseURL returns DATABASE_URL or ErrDatabaseURLRequired.
func RequireDatabaseURL() (string, error) {
	if url := DatabaseURL(); url != "" {
		return url, nil
	}
	return "", ErrDatabaseURLRequired
}
