package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://worldcat.org/webservices/kb/rest/collections/search", cfg.Source.Endpoint)
	assert.Equal(t, 50, cfg.Source.PageSize)
	assert.Equal(t, 5, cfg.HTTP.MaxConcurrent)
	assert.Equal(t, 2, cfg.HTTP.MaxRetries)
	assert.Equal(t, 60, cfg.HTTP.MaxWaitSeconds)
	assert.True(t, cfg.HTTP.EnforceIgnorelist)
	assert.True(t, cfg.HTTP.EnforceRobots)
	assert.False(t, cfg.HTTP.DomainsOnly)
	assert.InDelta(t, 0.5, cfg.Check.FailureThreshold, 1e-9)
	assert.Equal(t, "./caches", cfg.Cache.Dir)
	assert.False(t, cfg.Server.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
source:
  endpoint: https://kb.example.org/search
  key: secret
  page_size: 10
http:
  max_concurrent: 3
  ignorelist:
    - example.com
    - "*.blocked.org"
check:
  failure_threshold: 0.25
cache:
  dir: /tmp/linkcheck-caches
  preserve: true
server:
  enabled: true
  port: 9090
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://kb.example.org/search", cfg.Source.Endpoint)
	assert.Equal(t, "secret", cfg.Source.Key)
	assert.Equal(t, 10, cfg.Source.PageSize)
	assert.Equal(t, 3, cfg.HTTP.MaxConcurrent)
	assert.Equal(t, []string{"example.com", "*.blocked.org"}, cfg.HTTP.Ignorelist)
	assert.InDelta(t, 0.25, cfg.Check.FailureThreshold, 1e-9)
	assert.True(t, cfg.Cache.Preserve)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, 9090, cfg.Server.Port)

	// Unset values still fall back to defaults.
	assert.Equal(t, 2, cfg.HTTP.MaxRetries)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing endpoint", mutate: func(c *Config) { c.Source.Endpoint = "" }},
		{name: "bad page size", mutate: func(c *Config) { c.Source.PageSize = 0 }},
		{name: "missing user agent", mutate: func(c *Config) { c.HTTP.UserAgent = "" }},
		{name: "bad concurrency", mutate: func(c *Config) { c.HTTP.MaxConcurrent = 0 }},
		{name: "negative retries", mutate: func(c *Config) { c.HTTP.MaxRetries = -1 }},
		{name: "bad max wait", mutate: func(c *Config) { c.HTTP.MaxWaitSeconds = 0 }},
		{name: "negative rps", mutate: func(c *Config) { c.HTTP.DomainRPS = -1 }},
		{name: "threshold above one", mutate: func(c *Config) { c.Check.FailureThreshold = 1.5 }},
		{name: "threshold below zero", mutate: func(c *Config) { c.Check.FailureThreshold = -0.1 }},
		{name: "missing cache dir", mutate: func(c *Config) { c.Cache.Dir = "" }},
		{name: "bad server port", mutate: func(c *Config) { c.Server.Enabled = true; c.Server.Port = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, valid.Validate())
}
