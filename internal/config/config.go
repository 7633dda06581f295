package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the full runtime configuration, loaded from a TOML file with
// environment overrides on top.
type Config struct {
	Service ServiceConfig `toml:"service"`
	Backend BackendConfig `toml:"backend"`
	Chain   ChainConfig   `toml:"chain"`
	Log     LogConfig     `toml:"log"`
}

type ServiceConfig struct {
	HTTPPort              int    `toml:"http_port"`
	HMACSecret            string `toml:"hmac_secret"`
	HMACClockSkewSecs     int    `toml:"hmac_clock_skew_seconds"`
	IdempotencyWindowSecs int    `toml:"idempotency_window_seconds"`
	IdempotencyStorePath  string `toml:"idempotency_store_path"`
	PostgresDSN           string `toml:"postgres_dsn"`
	AddressStorePath      string `toml:"address_store_path"`
}

type BackendConfig struct {
	// Environment selects the origin ("local"/"development" vs anything
	// else); Origin, when set, overrides the selection outright.
	Environment    string `toml:"environment"`
	Origin         string `toml:"origin"`
	AdvisoryEpochs int    `toml:"advisory_epochs"`
}

type ChainConfig struct {
	RPCURL    string `toml:"rpc_url"`
	PackageID string `toml:"package_id"`
	// KeySeed is the hex-encoded ed25519 seed of the service signing key.
	// Prefer supplying it via CHAIN_KEY_SEED instead of the file.
	KeySeed string `toml:"key_seed"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// HMACClockSkew returns the configured skew as a duration.
func (s ServiceConfig) HMACClockSkew() time.Duration {
	return time.Duration(s.HMACClockSkewSecs) * time.Second
}

// IdempotencyWindow returns the configured window as a duration.
func (s ServiceConfig) IdempotencyWindow() time.Duration {
	return time.Duration(s.IdempotencyWindowSecs) * time.Second
}

// Load reads the TOML file at path (CONFIG_PATH overrides, missing file is
// fine) and applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()

	path = envOr("CONFIG_PATH", path)
	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Env-only configuration is supported.
		case err != nil:
			return nil, fmt.Errorf("open config: %w", err)
		default:
			defer file.Close()
			if err := toml.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("decode config: %w", err)
			}
		}
	}

	applyEnv(cfg)

	if cfg.Chain.PackageID == "" {
		return nil, errors.New("chain package id is required (chain.package_id or CHAIN_PACKAGE_ID)")
	}
	if cfg.Chain.RPCURL == "" {
		return nil, errors.New("chain rpc url is required (chain.rpc_url or CHAIN_RPC_URL)")
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			HTTPPort:              3000,
			HMACClockSkewSecs:     60,
			IdempotencyWindowSecs: 300,
			IdempotencyStorePath:  filepath.Join(os.TempDir(), "skinvault-idem.json"),
			AddressStorePath:      filepath.Join(os.TempDir(), "skinvault-address.json"),
		},
		Backend: BackendConfig{
			Environment:    "production",
			AdvisoryEpochs: 5,
		},
		Log: LogConfig{Level: "info"},
	}
}

func applyEnv(cfg *Config) {
	cfg.Service.HTTPPort = envOrInt("API_HTTP_PORT", cfg.Service.HTTPPort)
	cfg.Service.HMACSecret = envOr("API_HMAC_SECRET", cfg.Service.HMACSecret)
	cfg.Service.HMACClockSkewSecs = envOrInt("HMAC_CLOCK_SKEW_SECONDS", cfg.Service.HMACClockSkewSecs)
	cfg.Service.IdempotencyWindowSecs = envOrInt("IDEMPOTENCY_WINDOW_SECONDS", cfg.Service.IdempotencyWindowSecs)
	cfg.Service.IdempotencyStorePath = envOr("IDEMPOTENCY_STORE_PATH", cfg.Service.IdempotencyStorePath)
	cfg.Service.PostgresDSN = envOr("POSTGRES_DSN", cfg.Service.PostgresDSN)
	cfg.Service.AddressStorePath = envOr("ADDRESS_STORE_PATH", cfg.Service.AddressStorePath)

	cfg.Backend.Environment = envOr("BACKEND_ENV", cfg.Backend.Environment)
	cfg.Backend.Origin = envOr("BACKEND_ORIGIN", cfg.Backend.Origin)
	cfg.Backend.AdvisoryEpochs = envOrInt("ADVISORY_EPOCHS", cfg.Backend.AdvisoryEpochs)

	cfg.Chain.RPCURL = envOr("CHAIN_RPC_URL", cfg.Chain.RPCURL)
	cfg.Chain.PackageID = envOr("CHAIN_PACKAGE_ID", cfg.Chain.PackageID)
	cfg.Chain.KeySeed = envOr("CHAIN_KEY_SEED", cfg.Chain.KeySeed)

	cfg.Log.Level = envOr("LOG_LEVEL", cfg.Log.Level)
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}
