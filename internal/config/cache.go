package config

import (
	"time"
)

// CacheConfig defines settings for the movie catalog read-through cache.
// When Enabled is false or no Redis client is configured, catalog reads go
// straight to the database.  Seat state is never cached.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadCacheConfig reads environment variables to build a CacheConfig.  The
// defaults keep entries for an hour under the "movie" / "movies" keys.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: envBool("CACHE_ENABLED", true),
		TTL:     envDur("MOVIE_CACHE_TTL", time.Hour),
		Prefix:  envStr("CACHE_PREFIX", ""),
	}
}
