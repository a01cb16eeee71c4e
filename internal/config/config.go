package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.HeadPollInterval == 0 {
		cfg.HeadPollInterval = DefaultHeadPollInterval
	}

	if cfg.Origin.Timeout == 0 {
		cfg.Origin.Timeout = DefaultOriginTimeout
	}
	if cfg.Origin.RetryMaxAttempts == 0 {
		cfg.Origin.RetryMaxAttempts = DefaultRetryMaxAttempts
	}
	if cfg.Origin.RetryBaseDelay == 0 {
		cfg.Origin.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if cfg.Origin.RetryMaxDelay == 0 {
		cfg.Origin.RetryMaxDelay = DefaultRetryMaxDelay
	}

	if cfg.Cache != nil {
		if cfg.Cache.LocalSize == 0 {
			cfg.Cache.LocalSize = DefaultCacheLocalSize
		}
		if cfg.Cache.LocalTTL == 0 {
			cfg.Cache.LocalTTL = DefaultCacheLocalTTL
		}
	}

	if cfg.Rate.DefaultLimit == 0 {
		cfg.Rate.DefaultLimit = DefaultRateLimit
	}
	if cfg.Rate.Window == 0 {
		cfg.Rate.Window = DefaultRateWindow
	}
	if cfg.Rate.UsageBufferSize == 0 {
		cfg.Rate.UsageBufferSize = DefaultUsageBufferSize
	}

	for i := range cfg.Chains {
		if cfg.Chains[i].Network == "" {
			cfg.Chains[i].Network = DefaultNetwork
		}
		if cfg.Chains[i].Family == "" {
			cfg.Chains[i].Family = DefaultFamily
		}
		if cfg.Chains[i].Decimals == 0 {
			cfg.Chains[i].Decimals = DefaultDecimals
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.MaxBatchSize < 1 {
		return fmt.Errorf("maxBatchSize must be positive")
	}

	if cfg.Origin.Timeout < 0 {
		return fmt.Errorf("origin.timeout must be non-negative")
	}
	if cfg.Origin.RetryMaxAttempts < 1 {
		return fmt.Errorf("origin.retryMaxAttempts must be positive")
	}

	if len(cfg.Chains) == 0 {
		return errors.New("at least one chain is required")
	}

	seen := make(map[string]bool)
	for i, chain := range cfg.Chains {
		if chain.Slug == "" {
			return fmt.Errorf("chains[%d]: slug is required", i)
		}
		if chain.RPCURL == "" {
			return fmt.Errorf("chain '%s/%s': rpcUrl is required", chain.Slug, chain.Network)
		}
		if chain.Family != FamilyEVM && chain.Family != FamilyOther {
			return fmt.Errorf("chain '%s/%s': family must be 'evm' or 'other'", chain.Slug, chain.Network)
		}
		if chain.Decimals < 0 {
			return fmt.Errorf("chain '%s/%s': decimals must be non-negative", chain.Slug, chain.Network)
		}

		key := chain.Slug + "/" + chain.Network
		if seen[key] {
			return fmt.Errorf("chains[%d]: duplicate chain '%s'", i, key)
		}
		seen[key] = true
	}

	if cfg.Cache != nil && cfg.Cache.Enabled {
		if cfg.Cache.LocalSize <= 0 {
			return fmt.Errorf("cache.localSize must be positive when cache is enabled")
		}
		if cfg.Cache.LocalTTL <= 0 {
			return fmt.Errorf("cache.localTTL must be positive when cache is enabled")
		}
	}

	if cfg.Rate.Enabled {
		if cfg.Rate.DefaultLimit <= 0 {
			return fmt.Errorf("rate.defaultLimit must be positive when rate limiting is enabled")
		}
		if cfg.Rate.Window <= 0 {
			return fmt.Errorf("rate.window must be positive when rate limiting is enabled")
		}
	}

	return nil
}
