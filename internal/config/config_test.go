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

	assert.Equal(t, "0.0.0.0:8080", cfg.WAF.ListenAddr)
	assert.Equal(t, 150, cfg.LLM.JudgeMaxTokens)
	assert.Equal(t, 0.0, cfg.LLM.JudgeTemperature)
	assert.Equal(t, 2048, cfg.LLM.LearnerMaxTokens)
	assert.Equal(t, 900, cfg.Cache.TTLSeconds)
	assert.Equal(t, 10, cfg.Learner.MinFlaggedRequests)
	assert.Equal(t, 60, cfg.Learner.BatchIntervalMinutes)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
waf:
  listen_addr: "127.0.0.1:9090"
  upstream_url: "http://backend:3000"
  request_timeout_ms: 5000
llm:
  base_url: "http://llm:11434/v1"
  model: "test-model"
  judge_timeout_ms: 250
cache:
  enabled: false
learner:
  batch_interval_minutes: 1
  min_flagged_requests: 3
storage:
  log_db_path: "/tmp/events.db"
  rulebook_path: "/tmp/rulebook.json"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.WAF.ListenAddr)
	assert.Equal(t, "http://backend:3000", cfg.WAF.UpstreamURL)
	assert.Equal(t, "test-model", cfg.LLM.Model)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 3, cfg.Learner.MinFlaggedRequests)
	// Values absent from the file keep their defaults.
	assert.Equal(t, 150, cfg.LLM.JudgeMaxTokens)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen addr", func(c *Config) { c.WAF.ListenAddr = "" }},
		{"empty upstream", func(c *Config) { c.WAF.UpstreamURL = "" }},
		{"zero request timeout", func(c *Config) { c.WAF.RequestTimeoutMs = 0 }},
		{"empty model", func(c *Config) { c.LLM.Model = "" }},
		{"zero judge timeout", func(c *Config) { c.LLM.JudgeTimeoutMs = 0 }},
		{"cache enabled without url", func(c *Config) { c.Cache.URL = "" }},
		{"empty db path", func(c *Config) { c.Storage.LogDBPath = "" }},
		{"empty rulebook path", func(c *Config) { c.Storage.RulebookPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, cfg.WAF.RequestTimeout().Milliseconds(), int64(cfg.WAF.RequestTimeoutMs))
	assert.Equal(t, cfg.LLM.JudgeTimeout().Milliseconds(), int64(cfg.LLM.JudgeTimeoutMs))
	assert.Equal(t, cfg.Cache.TTL().Seconds(), float64(cfg.Cache.TTLSeconds))
	assert.Equal(t, cfg.Learner.BatchInterval().Minutes(), float64(cfg.Learner.BatchIntervalMinutes))
}
