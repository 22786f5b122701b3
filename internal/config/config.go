package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	WAF           WAFConfig           `mapstructure:"waf"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Learner       LearnerConfig       `mapstructure:"learner"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type WAFConfig struct {
	ListenAddr       string `mapstructure:"listen_addr"`
	UpstreamURL      string `mapstructure:"upstream_url"`
	RequestTimeoutMs int    `mapstructure:"request_timeout_ms"`
	MaxBodyBytes     int    `mapstructure:"max_body_bytes"`
}

func (c WAFConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

type LLMConfig struct {
	BaseURL            string  `mapstructure:"base_url"`
	APIKey             string  `mapstructure:"api_key"`
	Model              string  `mapstructure:"model"`
	JudgeTimeoutMs     int     `mapstructure:"judge_timeout_ms"`
	JudgeMaxTokens     int     `mapstructure:"judge_max_tokens"`
	JudgeTemperature   float64 `mapstructure:"judge_temperature"`
	LearnerTimeoutMs   int     `mapstructure:"learner_timeout_ms"`
	LearnerMaxTokens   int     `mapstructure:"learner_max_tokens"`
	LearnerTemperature float64 `mapstructure:"learner_temperature"`
}

func (c LLMConfig) JudgeTimeout() time.Duration {
	return time.Duration(c.JudgeTimeoutMs) * time.Millisecond
}

func (c LLMConfig) LearnerTimeout() time.Duration {
	return time.Duration(c.LearnerTimeoutMs) * time.Millisecond
}

type CacheConfig struct {
	URL        string `mapstructure:"url"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
	Enabled    bool   `mapstructure:"enabled"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type LearnerConfig struct {
	BatchIntervalMinutes int  `mapstructure:"batch_interval_minutes"`
	MinFlaggedRequests   int  `mapstructure:"min_flagged_requests"`
	Enabled              bool `mapstructure:"enabled"`
}

func (c LearnerConfig) BatchInterval() time.Duration {
	return time.Duration(c.BatchIntervalMinutes) * time.Minute
}

type StorageConfig struct {
	LogDBPath    string `mapstructure:"log_db_path"`
	RulebookPath string `mapstructure:"rulebook_path"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFile        string `mapstructure:"log_file"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

// Load reads configuration from the given file (optional) with WARDEN_*
// environment overrides, e.g. WARDEN_WAF_UPSTREAM_URL.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("warden")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when no explicit path was given; defaults
		// plus environment variables still form a complete config.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("waf.listen_addr", "0.0.0.0:8080")
	v.SetDefault("waf.upstream_url", "http://localhost:3000")
	v.SetDefault("waf.request_timeout_ms", 30000)
	v.SetDefault("waf.max_body_bytes", 65536)

	v.SetDefault("llm.base_url", "http://localhost:11434/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "llama3.2")
	v.SetDefault("llm.judge_timeout_ms", 30000)
	v.SetDefault("llm.judge_max_tokens", 150)
	v.SetDefault("llm.judge_temperature", 0.0)
	v.SetDefault("llm.learner_timeout_ms", 120000)
	v.SetDefault("llm.learner_max_tokens", 2048)
	v.SetDefault("llm.learner_temperature", 0.3)

	v.SetDefault("cache.url", "redis://localhost:6379/0")
	v.SetDefault("cache.ttl_seconds", 900)
	v.SetDefault("cache.enabled", true)

	v.SetDefault("learner.batch_interval_minutes", 60)
	v.SetDefault("learner.min_flagged_requests", 10)
	v.SetDefault("learner.enabled", true)

	v.SetDefault("storage.log_db_path", "./data/events.db")
	v.SetDefault("storage.rulebook_path", "./data/rulebook.json")

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_file", "")
	v.SetDefault("observability.metrics_enabled", true)
}

func (c *Config) Validate() error {
	if c.WAF.ListenAddr == "" {
		return fmt.Errorf("waf.listen_addr cannot be empty")
	}
	if c.WAF.UpstreamURL == "" {
		return fmt.Errorf("waf.upstream_url cannot be empty")
	}
	if c.WAF.RequestTimeoutMs <= 0 {
		return fmt.Errorf("waf.request_timeout_ms must be greater than 0")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url cannot be empty")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model cannot be empty")
	}
	if c.LLM.JudgeTimeoutMs <= 0 {
		return fmt.Errorf("llm.judge_timeout_ms must be greater than 0")
	}
	if c.Cache.Enabled && c.Cache.URL == "" {
		return fmt.Errorf("cache.url cannot be empty when cache is enabled")
	}
	if c.Learner.Enabled && c.Learner.BatchIntervalMinutes <= 0 {
		return fmt.Errorf("learner.batch_interval_minutes must be greater than 0")
	}
	if c.Storage.LogDBPath == "" {
		return fmt.Errorf("storage.log_db_path cannot be empty")
	}
	if c.Storage.RulebookPath == "" {
		return fmt.Errorf("storage.rulebook_path cannot be empty")
	}
	return nil
}
