package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string `mapstructure:"url"`

	// Pool settings
	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`

	// RoomTTL expires a room and its participant/result hashes. Zero keeps them forever.
	RoomTTL time.Duration `mapstructure:"room_ttl"`

	// MaxTxRetries bounds optimistic transaction retries under contention
	MaxTxRetries int `mapstructure:"max_tx_retries"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		RoomTTL:      24 * time.Hour,
		MaxTxRetries: 16,
	}
}
