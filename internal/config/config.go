// Package config provides configuration loading and validation for the pikflix service.
//
// Values are layered: struct defaults, then an optional YAML file, then
// environment variables. Nested keys are addressed in the environment as
// PIKFLIX_<SECTION>__<KEY> (for example PIKFLIX_CACHE__TTL=24h). The
// conventional DATABASE_URL, GEMINI_API_KEY, TMDB_API_KEY and PORT variables
// are honoured as well.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar overrides the config file location.
const PathEnvVar = "CONFIG_PATH"

// EnvPrefix is the prefix for namespaced environment overrides.
const EnvPrefix = "PIKFLIX_"

// DefaultPaths are searched in order when no explicit path is given.
var DefaultPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/pikflix/config.yaml",
}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	LLM       LLMConfig       `koanf:"llm"`
	TMDB      TMDBConfig      `koanf:"tmdb"`
	Cache     CacheConfig     `koanf:"cache"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Writeback WritebackConfig `koanf:"writeback"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// DatabaseConfig configures the catalog store.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// LLMConfig configures the recommendation source.
type LLMConfig struct {
	APIKey             string `koanf:"api_key"`
	Model              string `koanf:"model"`
	MaxRecommendations int    `koanf:"max_recommendations"`
}

// TMDBConfig configures the metadata provider.
type TMDBConfig struct {
	BaseURL           string        `koanf:"base_url"`
	APIToken          string        `koanf:"api_token"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
}

// CacheConfig holds the freshness window for stored records.
type CacheConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// PipelineConfig tunes fetch fan-out.
type PipelineConfig struct {
	FetchConcurrency  int `koanf:"fetch_concurrency"`
	StreamConcurrency int `koanf:"stream_concurrency"`
}

// WritebackConfig tunes the background persistence workers.
type WritebackConfig struct {
	Workers      int           `koanf:"workers"`
	QueueSize    int           `koanf:"queue_size"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// RateLimitConfig configures inbound per-client limits.
type RateLimitConfig struct {
	Enabled       bool          `koanf:"enabled"`
	DefaultLimit  int           `koanf:"default_limit"`
	DefaultWindow time.Duration `koanf:"default_window"`
	// Whitelist and Blacklist hold client IPs that bypass or are always denied.
	Whitelist []string `koanf:"whitelist"`
	Blacklist []string `koanf:"blacklist"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second, // streaming responses stay open while titles resolve
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		LLM: LLMConfig{
			Model:              "gemini-2.5-flash",
			MaxRecommendations: 9,
		},
		TMDB: TMDBConfig{
			BaseURL:           "https://api.themoviedb.org/3",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 40,
			Burst:             20,
		},
		Cache: CacheConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Pipeline: PipelineConfig{
			FetchConcurrency:  4,
			StreamConcurrency: 4,
		},
		Writeback: WritebackConfig{
			Workers:      2,
			QueueSize:    256,
			WriteTimeout: 15 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			DefaultLimit:  300,
			DefaultWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// wellKnownEnv maps conventional variable names onto config keys.
var wellKnownEnv = map[string]string{
	"DATABASE_URL":   "database.url",
	"GEMINI_API_KEY": "llm.api_key",
	"TMDB_API_KEY":   "tmdb.api_token",
	"PORT":           "server.port",
}

// LoadConfig loads configuration from defaults, the YAML file at path (or the
// first of DefaultPaths that exists when path is empty) and the environment.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	for _, key := range listKeys {
		if raw, ok := k.Get(key).(string); ok {
			if err := k.Set(key, splitList(raw)); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", key, err)
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

// listKeys may be given as comma-separated strings in the environment.
var listKeys = []string{"server.cors_origins", "rate_limit.whitelist", "rate_limit.blacklist"}

// envKey maps an environment variable name to a config key, or "" to ignore it.
func envKey(name string) string {
	if key, ok := wellKnownEnv[name]; ok {
		return key
	}
	if !strings.HasPrefix(name, EnvPrefix) {
		return ""
	}
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks ranges. Credentials are checked by ValidateForServe since
// the migrate command only needs the database.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: 'server.port' must be between 1 and 65535")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config error: 'cache.ttl' must be positive")
	}
	if c.LLM.MaxRecommendations <= 0 {
		return fmt.Errorf("config error: 'llm.max_recommendations' must be positive")
	}
	if c.Pipeline.FetchConcurrency <= 0 || c.Pipeline.StreamConcurrency <= 0 {
		return fmt.Errorf("config error: pipeline concurrency must be positive")
	}
	if c.Writeback.Workers <= 0 || c.Writeback.QueueSize <= 0 {
		return fmt.Errorf("config error: writeback workers and queue_size must be positive")
	}
	if c.TMDB.RequestsPerSecond < 0 {
		return fmt.Errorf("config error: 'tmdb.requests_per_second' must be non-negative")
	}
	return nil
}

// ValidateForServe additionally requires every external credential.
func (c *Config) ValidateForServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Database.URL == "" {
		return fmt.Errorf("config error: database url is required (DATABASE_URL)")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("config error: llm api key is required (GEMINI_API_KEY)")
	}
	if c.TMDB.APIToken == "" {
		return fmt.Errorf("config error: tmdb api token is required (TMDB_API_KEY)")
	}
	return nil
}
