package ratelimit

import (
	"time"

	"github.com/jonathan/pikflix/internal/config"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// FromConfig builds the limiter configuration from the service configuration.
func FromConfig(cfg config.RateLimitConfig) *Config {
	if !cfg.Enabled {
		return &Config{Enabled: false}
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    cfg.DefaultLimit,
		DefaultWindow:   cfg.DefaultWindow,
		CleanupInterval: 5 * time.Minute,
		Whitelist:       toSet(cfg.Whitelist),
		Blacklist:       toSet(cfg.Blacklist),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Each recommendation request costs a generation call and up to nine
		// metadata fetches.
		{Path: "/api/movies/recommendations", Method: "POST", Limit: 30, Window: time.Minute, Burst: 5},
		{Path: "/api/movies/recommendations/stream", Method: "POST", Limit: 30, Window: time.Minute, Burst: 5},

		{Path: "/api/providers/", Method: "POST", Limit: 120, Window: time.Minute, Burst: 20},

		// Everything else uses the default limit; /health and /metrics are unlimited.
	}
}

func toSet(list []string) map[string]bool {
	result := make(map[string]bool, len(list))
	for _, ip := range list {
		if ip != "" {
			result[ip] = true
		}
	}
	return result
}
