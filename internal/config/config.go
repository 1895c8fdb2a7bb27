// Package config loads and validates link-checker configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Check   CheckConfig   `mapstructure:"check"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SourceConfig identifies the upstream knowledge-base API.
type SourceConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Key      string `mapstructure:"key"`
	PageSize int    `mapstructure:"page_size"`
}

// HTTPConfig governs the politeness fetcher.
type HTTPConfig struct {
	UserAgent         string   `mapstructure:"user_agent"`
	MaxConcurrent     int      `mapstructure:"max_concurrent"`
	MaxRetries        int      `mapstructure:"max_retries"`
	MaxWaitSeconds    int      `mapstructure:"max_wait_seconds"`
	DomainRPS         float64  `mapstructure:"domain_rps"`
	Ignorelist        []string `mapstructure:"ignorelist"`
	EnforceIgnorelist bool     `mapstructure:"enforce_ignorelist"`
	EnforceRobots     bool     `mapstructure:"enforce_robots"`
	DomainsOnly       bool     `mapstructure:"domains_only"`
}

// CheckConfig controls the analysis stage.
type CheckConfig struct {
	FailureThreshold float64 `mapstructure:"failure_threshold"`
}

// CacheConfig sets where the resource and result stores live on disk.
type CacheConfig struct {
	Dir      string `mapstructure:"dir"`
	Preserve bool   `mapstructure:"preserve"`
}

// ServerConfig controls the optional ops endpoint.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LINKCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.endpoint", "https://worldcat.org/webservices/kb/rest/collections/search")
	v.SetDefault("source.page_size", 50)
	v.SetDefault("http.user_agent", "kb-linkcheck/0.1")
	v.SetDefault("http.max_concurrent", 5)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.max_wait_seconds", 60)
	v.SetDefault("http.domain_rps", 1.0)
	v.SetDefault("http.enforce_ignorelist", true)
	v.SetDefault("http.enforce_robots", true)
	v.SetDefault("http.domains_only", false)
	v.SetDefault("check.failure_threshold", 0.5)
	v.SetDefault("cache.dir", "./caches")
	v.SetDefault("cache.preserve", false)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Source.Endpoint == "" {
		return fmt.Errorf("source.endpoint must be set")
	}
	if c.Source.PageSize <= 0 {
		return fmt.Errorf("source.page_size must be > 0")
	}
	if c.HTTP.UserAgent == "" {
		return fmt.Errorf("http.user_agent must be set")
	}
	if c.HTTP.MaxConcurrent <= 0 {
		return fmt.Errorf("http.max_concurrent must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.MaxWaitSeconds <= 0 {
		return fmt.Errorf("http.max_wait_seconds must be > 0")
	}
	if c.HTTP.DomainRPS < 0 {
		return fmt.Errorf("http.domain_rps must be >= 0")
	}
	if c.Check.FailureThreshold < 0 || c.Check.FailureThreshold > 1 {
		return fmt.Errorf("check.failure_threshold must be within [0, 1]")
	}
	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir must be set")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	return nil
}
