package config

import "time"

// ChainFamily identifies the account model of a chain
type ChainFamily string

const (
	FamilyEVM   ChainFamily = "evm"
	FamilyOther ChainFamily = "other"
)

// Config represents the main configuration structure
type Config struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	LogLevel         string `json:"logLevel"`
	MaxBodySize      int64  `json:"maxBodySize"`
	MaxBatchSize     int    `json:"maxBatchSize"`
	ShutdownTimeout  int    `json:"shutdownTimeout"`  // ms
	HeadPollInterval int    `json:"headPollInterval"` // ms - interval for head subscription polling

	Origin OriginConfig  `json:"origin"`
	Cache  *CacheConfig  `json:"cache,omitempty"`
	Rate   RateConfig    `json:"rate"`
	Chains []ChainConfig `json:"chains"`
}

// OriginConfig holds origin RPC client settings
type OriginConfig struct {
	Timeout          int `json:"timeout"`          // ms - per-call timeout
	RetryMaxAttempts int `json:"retryMaxAttempts"` // total attempts including the first
	RetryBaseDelay   int `json:"retryBaseDelay"`   // ms - first backoff step
	RetryMaxDelay    int `json:"retryMaxDelay"`    // ms - backoff ceiling
}

// CacheConfig represents multi-tier cache configuration
type CacheConfig struct {
	Enabled   bool   `json:"enabled"`
	LocalSize int    `json:"localSize"` // number of L0 entries
	LocalTTL  int    `json:"localTTL"`  // seconds - cap on L0 entry lifetime
	RedisAddr string `json:"redisAddr"` // empty means in-process L1 store
	RedisDB   int    `json:"redisDB"`
	RedisPass string `json:"redisPass"`
}

// RateConfig holds rate limiting and metering settings
type RateConfig struct {
	Enabled         bool `json:"enabled"`
	DefaultLimit    int  `json:"defaultLimit"`    // requests per window per credential
	Window          int  `json:"window"`          // seconds
	UsageBufferSize int  `json:"usageBufferSize"` // buffered usage records before drops
}

// ChainConfig represents a single chain network entry
type ChainConfig struct {
	Slug     string      `json:"slug"`
	Network  string      `json:"network"`
	RPCURL   string      `json:"rpcUrl"`
	Family   ChainFamily `json:"family"`
	Decimals int         `json:"decimals"`
}

// Default values
const (
	DefaultHost             = "localhost"
	DefaultPort             = 8545
	DefaultLogLevel         = "info"
	DefaultMaxBodySize      = int64(10 << 20) // 10 MiB
	DefaultMaxBatchSize     = 100
	DefaultShutdownTimeout  = 30000 // ms
	DefaultHeadPollInterval = 2000  // ms

	DefaultOriginTimeout    = 30000 // ms
	DefaultRetryMaxAttempts = 3
	DefaultRetryBaseDelay   = 500   // ms
	DefaultRetryMaxDelay    = 5000  // ms

	DefaultCacheLocalSize = 10000
	DefaultCacheLocalTTL  = 300 // seconds

	DefaultRateLimit       = 300 // per window
	DefaultRateWindow      = 60  // seconds
	DefaultUsageBufferSize = 4096

	DefaultNetwork  = "mainnet"
	DefaultDecimals = 18
	DefaultFamily   = FamilyEVM
)

// GetShutdownTimeoutDuration returns shutdown timeout as time.Duration
func (c *Config) GetShutdownTimeoutDuration() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Millisecond
}

// GetHeadPollIntervalDuration returns head poll interval as time.Duration
func (c *Config) GetHeadPollIntervalDuration() time.Duration {
	return time.Duration(c.HeadPollInterval) * time.Millisecond
}

// GetTimeoutDuration returns the per-call origin timeout as time.Duration
func (o *OriginConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(o.Timeout) * time.Millisecond
}

// GetRetryBaseDelayDuration returns the first backoff step as time.Duration
func (o *OriginConfig) GetRetryBaseDelayDuration() time.Duration {
	return time.Duration(o.RetryBaseDelay) * time.Millisecond
}

// GetRetryMaxDelayDuration returns the backoff ceiling as time.Duration
func (o *OriginConfig) GetRetryMaxDelayDuration() time.Duration {
	return time.Duration(o.RetryMaxDelay) * time.Millisecond
}

// GetLocalTTLDuration returns the L0 TTL cap as time.Duration
func (c *CacheConfig) GetLocalTTLDuration() time.Duration {
	return time.Duration(c.LocalTTL) * time.Second
}

// GetWindowDuration returns the rate window as time.Duration
func (r *RateConfig) GetWindowDuration() time.Duration {
	return time.Duration(r.Window) * time.Second
}

// IsCacheEnabled returns true if cache is configured and enabled
func (c *Config) IsCacheEnabled() bool {
	return c.Cache != nil && c.Cache.Enabled
}
