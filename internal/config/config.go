// Package config loads the toolkit configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"marketdata/internal/calendar"
	"marketdata/internal/model"
	"marketdata/internal/vendor"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "marketdata.yaml"

// Environment variables that override file values.
const (
	EnvTiingoAPIKey       = "TIINGO_API_KEY"
	EnvAlphaVantageAPIKey = "ALPHA_VANTAGE_API_KEY"
	EnvORATSAPIKey        = "ORATS_API_KEY"
	EnvFREDAPIKey         = "FRED_API_KEY"
	EnvMassiveAPIKey      = "MASSIVE_API_KEY"
	EnvCacheDir           = "MARKETDATA_CACHE_DIR"
	EnvLogLevel           = "MARKETDATA_LOG_LEVEL"
)

// Config holds all toolkit configuration.
type Config struct {
	CacheDir string `yaml:"cache_dir" validate:"required"`
	Exchange string `yaml:"exchange" validate:"required"`

	Vendors struct {
		Tiingo       Vendor `yaml:"tiingo"`
		AlphaVantage Vendor `yaml:"alpha_vantage"`
		Massive      Vendor `yaml:"massive"`
		ORATS        Vendor `yaml:"orats"`
		FRED         Vendor `yaml:"fred"`
	} `yaml:"vendors"`

	// Equity selects the adapter serving equity bars: "massive" or "alpha_vantage".
	Equity string `yaml:"equity" validate:"oneof=massive alpha_vantage"`

	Fetch struct {
		PageDelay     time.Duration `yaml:"page_delay" validate:"gte=0"`
		RetryAttempts int           `yaml:"retry_attempts" validate:"gte=0"`
		RetryBackoff  time.Duration `yaml:"retry_backoff" validate:"gte=0"`
		RetryMaxDelay time.Duration `yaml:"retry_max_delay" validate:"gte=0"`
	} `yaml:"fetch"`

	Refresh struct {
		Cron        string `yaml:"cron" validate:"required"`
		Concurrency int    `yaml:"concurrency" validate:"gt=0"`
		Jobs        []Job  `yaml:"jobs" validate:"dive"`
	} `yaml:"refresh"`

	Log struct {
		Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Vendor is the file form of one adapter configuration.
type Vendor struct {
	BaseURL   string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey    string        `yaml:"api_key"`
	PageLimit int           `yaml:"page_limit" validate:"gte=0"`
	Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
}

// Adapter converts v into the adapter configuration. Empty fields fall
// back to the adapter defaults at construction.
func (v Vendor) Adapter() *vendor.Config {
	return &vendor.Config{
		BaseURL:   v.BaseURL,
		APIKey:    v.APIKey,
		PageLimit: v.PageLimit,
		Timeout:   v.Timeout,
	}
}

// Job is one cache key kept fresh by the refresher.
type Job struct {
	Symbol string           `yaml:"symbol" validate:"required"`
	Class  model.AssetClass `yaml:"class" validate:"required,oneof=equity crypto"`
	Start  time.Time        `yaml:"start" validate:"required"`
}

// Load reads config from a YAML file, expands ${VAR} references, then
// applies environment variable overrides and defaults. A missing file
// yields a configuration built from the environment alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	return cfg, nil
}

// LoadAndValidate loads config and validates it.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		env    string
		target *string
	}{
		{EnvTiingoAPIKey, &c.Vendors.Tiingo.APIKey},
		{EnvAlphaVantageAPIKey, &c.Vendors.AlphaVantage.APIKey},
		{EnvORATSAPIKey, &c.Vendors.ORATS.APIKey},
		{EnvFREDAPIKey, &c.Vendors.FRED.APIKey},
		{EnvMassiveAPIKey, &c.Vendors.Massive.APIKey},
		{EnvCacheDir, &c.CacheDir},
		{EnvLogLevel, &c.Log.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.CacheDir == "" {
		c.CacheDir = "./cache"
	}
	if c.Exchange == "" {
		c.Exchange = calendar.DefaultExchange
	}
	if c.Equity == "" {
		c.Equity = "massive"
	}
	if c.Refresh.Cron == "" {
		c.Refresh.Cron = "0 */15 * * * *"
	}
	if c.Refresh.Concurrency == 0 {
		c.Refresh.Concurrency = 4
	}
	if c.Fetch.RetryBackoff == 0 {
		c.Fetch.RetryBackoff = time.Second
	}
	if c.Fetch.RetryMaxDelay == 0 {
		c.Fetch.RetryMaxDelay = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks struct constraints and that the exchange is registered.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if _, err := calendar.New(c.Exchange); err != nil {
		return fmt.Errorf("exchange: %w", err)
	}
	return nil
}
