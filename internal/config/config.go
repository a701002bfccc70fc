// Package config provides configuration management for the discovery core.
// It handles loading, validation, and access to configuration values from
// both YAML files and environment variables using Viper, following the
// recognized options in the system specification's external interfaces.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// SchedulerConfig holds scheduler-related settings.
type SchedulerConfig struct {
	PollIntervalSeconds int  `yaml:"poll_interval_seconds" mapstructure:"poll_interval_seconds"`
	WorkerPoolSize      int  `yaml:"worker_pool_size" mapstructure:"worker_pool_size"`
	AutoStart           bool `yaml:"auto_start" mapstructure:"auto_start"`
}

// DiscoveryConfig holds discovery-run defaults.
type DiscoveryConfig struct {
	DefaultMaxArticles        int     `yaml:"default_max_articles" mapstructure:"default_max_articles"`
	DefaultRelevanceThreshold float64 `yaml:"default_relevance_threshold" mapstructure:"default_relevance_threshold"`
	ResultRetentionDays       int     `yaml:"result_retention_days" mapstructure:"result_retention_days"`
}

// BrowserConfig holds browser workflow engine settings.
type BrowserConfig struct {
	MaxConcurrentContexts int `yaml:"max_concurrent_contexts" mapstructure:"max_concurrent_contexts"`
	SessionMaxAgeDays     int `yaml:"session_max_age_days" mapstructure:"session_max_age_days"`
}

// AdapterOverride holds the optional per-adapter overrides from §6.
type AdapterOverride struct {
	RateLimitOverride float64 `yaml:"rate_limit_override" mapstructure:"rate_limit_override"`
	APIKey            string  `yaml:"api_key" mapstructure:"api_key"`
}

// ElasticsearchConfig holds the canonical-store connection settings.
type ElasticsearchConfig struct {
	Addresses          []string `yaml:"addresses" mapstructure:"addresses"`
	APIKey             string   `yaml:"api_key" mapstructure:"api_key"`
	Username           string   `yaml:"username" mapstructure:"username"`
	Password           string   `yaml:"password" mapstructure:"password"`
	IndexPrefix        string   `yaml:"index_prefix" mapstructure:"index_prefix"`
	TLSInsecureSkipVer bool     `yaml:"tls_insecure_skip_verify" mapstructure:"tls_insecure_skip_verify"`
}

// Validate checks the Elasticsearch connection settings are usable.
func (c *ElasticsearchConfig) Validate() error {
	if len(c.Addresses) == 0 {
		return errors.New("elasticsearch: at least one address is required")
	}
	return nil
}

// LogConfig holds logging settings.
type LogConfig struct {
	Debug bool   `yaml:"debug" mapstructure:"debug"`
	Level string `yaml:"level" mapstructure:"level"`
}

// Config is the root application configuration, matching spec §6's
// recognized options.
type Config struct {
	Environment   string                     `yaml:"environment" mapstructure:"environment"`
	ContactEmail  string                     `yaml:"contact_email" mapstructure:"contact_email"`
	Logger        LogConfig                  `yaml:"logger" mapstructure:"logger"`
	Scheduler     SchedulerConfig            `yaml:"scheduler" mapstructure:"scheduler"`
	Discovery     DiscoveryConfig            `yaml:"discovery" mapstructure:"discovery"`
	Browser       BrowserConfig              `yaml:"browser" mapstructure:"browser"`
	Elasticsearch ElasticsearchConfig        `yaml:"elasticsearch" mapstructure:"elasticsearch"`
	Adapters      map[string]AdapterOverride `yaml:"adapters" mapstructure:"adapters"`
	SourcesDir    string                     `yaml:"sources_dir" mapstructure:"sources_dir"`
	SessionsDir   string                     `yaml:"sessions_dir" mapstructure:"sessions_dir"`
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return errors.New("environment is required")
	}
	if c.Scheduler.PollIntervalSeconds <= 0 {
		return errors.New("scheduler.poll_interval_seconds must be positive")
	}
	if c.Scheduler.WorkerPoolSize <= 0 {
		return errors.New("scheduler.worker_pool_size must be positive")
	}
	if c.Discovery.DefaultRelevanceThreshold < 0 || c.Discovery.DefaultRelevanceThreshold > 1 {
		return errors.New("discovery.default_relevance_threshold must be in [0,1]")
	}
	if c.Browser.MaxConcurrentContexts <= 0 {
		return errors.New("browser.max_concurrent_contexts must be positive")
	}
	if err := c.Elasticsearch.Validate(); err != nil {
		return err
	}
	if c.SourcesDir == "" {
		return errors.New("sources_dir is required")
	}
	return nil
}

// PollInterval returns the scheduler's poll cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Scheduler.PollIntervalSeconds) * time.Second
}

// SessionMaxAge returns the browser session eviction age as a duration.
func (c *Config) SessionMaxAge() time.Duration {
	return time.Duration(c.Browser.SessionMaxAgeDays) * 24 * time.Hour
}

// ResultRetention returns the DiscoveryResult retention window as a duration.
func (c *Config) ResultRetention() time.Duration {
	return time.Duration(c.Discovery.ResultRetentionDays) * 24 * time.Hour
}

// setDefaults sets the defaults listed in spec §6.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("logger.level", "info")
	v.SetDefault("scheduler.poll_interval_seconds", 60)
	v.SetDefault("scheduler.worker_pool_size", 4)
	v.SetDefault("scheduler.auto_start", true)
	v.SetDefault("discovery.default_max_articles", 50)
	v.SetDefault("discovery.default_relevance_threshold", 0.7)
	v.SetDefault("discovery.result_retention_days", 30)
	v.SetDefault("browser.max_concurrent_contexts", 5)
	v.SetDefault("browser.session_max_age_days", 7)
	v.SetDefault("elasticsearch.addresses", []string{"https://localhost:9200"})
	v.SetDefault("elasticsearch.tls_insecure_skip_verify", true)
	v.SetDefault("elasticsearch.index_prefix", "thoth")
	v.SetDefault("sources_dir", "./sources")
	v.SetDefault("sessions_dir", "./sessions")
}

// bindEnvVars binds the recognized environment variables to config keys.
func bindEnvVars(v *viper.Viper) error {
	envVars := map[string]string{
		"environment":                             "APP_ENV",
		"contact_email":                           "THOTH_CONTACT_EMAIL",
		"logger.debug":                            "APP_DEBUG",
		"logger.level":                            "LOG_LEVEL",
		"scheduler.poll_interval_seconds":         "SCHEDULER_POLL_INTERVAL_SECONDS",
		"scheduler.worker_pool_size":              "SCHEDULER_WORKER_POOL_SIZE",
		"scheduler.auto_start":                    "SCHEDULER_AUTO_START",
		"discovery.default_max_articles":          "DISCOVERY_DEFAULT_MAX_ARTICLES",
		"discovery.default_relevance_threshold":   "DISCOVERY_DEFAULT_RELEVANCE_THRESHOLD",
		"discovery.result_retention_days":         "DISCOVERY_RESULT_RETENTION_DAYS",
		"browser.max_concurrent_contexts":         "BROWSER_MAX_CONCURRENT_CONTEXTS",
		"browser.session_max_age_days":            "BROWSER_SESSION_MAX_AGE_DAYS",
		"elasticsearch.addresses":                 "ELASTICSEARCH_HOSTS",
		"elasticsearch.api_key":                   "ELASTICSEARCH_API_KEY",
		"elasticsearch.username":                  "ELASTICSEARCH_USERNAME",
		"elasticsearch.password":                  "ELASTICSEARCH_PASSWORD",
		"elasticsearch.index_prefix":              "ELASTICSEARCH_INDEX_PREFIX",
		"elasticsearch.tls_insecure_skip_verify": "ELASTICSEARCH_TLS_INSECURE_SKIP_VERIFY",
		"sources_dir":                            "THOTH_SOURCES_DIR",
		"sessions_dir":                           "THOTH_SESSIONS_DIR",
	}

	for configKey, envVar := range envVars {
		if err := v.BindEnv(configKey, envVar); err != nil {
			return fmt.Errorf("failed to bind environment variable %s: %w", envVar, err)
		}
	}
	return nil
}

// loadEnvironment loads a .env file if present; its absence is not an error.
func loadEnvironment() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
}

// Load reads configuration from config.yaml (searched in the current
// directory, $HOME/.thoth, and /etc/thoth), environment variables, and
// built-in defaults. Per Viper's standard precedence, environment variables
// override config.yaml values, which override the built-in defaults.
func Load() (*Config, error) {
	v := viper.GetViper()
	v.SetConfigType("yaml")
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.thoth")
	v.AddConfigPath("/etc/thoth")

	setDefaults(v)
	loadEnvironment()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
