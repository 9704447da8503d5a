// Package config loads the settings of the prefetching layer.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vegasq/pqprefetch/physical"
	"github.com/vegasq/pqprefetch/prefetch"
	"github.com/vegasq/pqprefetch/store"
)

// EnvPrefix prefixes environment overrides, e.g. PQPREFETCH_PREFETCH_MODE.
const EnvPrefix = "PQPREFETCH"

// DefaultTailLength is the number of trailing bytes read to find the footer.
const DefaultTailLength = 1 << 20

// Config holds every tunable of a session, grouped by the component it
// configures. Keys mirror the YAML layout, e.g. prefetch.mode.
type Config struct {
	Prefetch struct {
		Mode              string `mapstructure:"mode"`
		ColdFileRowGroups int    `mapstructure:"cold_file_row_groups"`
	} `mapstructure:"prefetch"`

	Footer struct {
		TailLength int64 `mapstructure:"tail_length"`
	} `mapstructure:"footer"`

	Store struct {
		MetadataStoreSize int `mapstructure:"metadata_store_size"`
	} `mapstructure:"store"`

	Physical struct {
		CacheEntries   int           `mapstructure:"cache_entries"`
		MaxConcurrency int           `mapstructure:"max_concurrency"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
		DemandRetries  int           `mapstructure:"demand_retries"`
	} `mapstructure:"physical"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	pd := physical.DefaultConfig()

	cfg.Prefetch.Mode = string(prefetch.ModeRowGroup)
	cfg.Prefetch.ColdFileRowGroups = prefetch.DefaultColdFileRowGroups
	cfg.Footer.TailLength = DefaultTailLength
	cfg.Store.MetadataStoreSize = store.DefaultMetadataStoreSize
	cfg.Physical.CacheEntries = pd.CacheEntries
	cfg.Physical.MaxConcurrency = pd.MaxConcurrency
	cfg.Physical.RequestTimeout = pd.RequestTimeout
	cfg.Physical.DemandRetries = pd.DemandRetries
	return &cfg
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("prefetch.mode", d.Prefetch.Mode)
	v.SetDefault("prefetch.cold_file_row_groups", d.Prefetch.ColdFileRowGroups)
	v.SetDefault("footer.tail_length", d.Footer.TailLength)
	v.SetDefault("store.metadata_store_size", d.Store.MetadataStoreSize)
	v.SetDefault("physical.cache_entries", d.Physical.CacheEntries)
	v.SetDefault("physical.max_concurrency", d.Physical.MaxConcurrency)
	v.SetDefault("physical.request_timeout", d.Physical.RequestTimeout)
	v.SetDefault("physical.demand_retries", d.Physical.DemandRetries)
}

// Load reads a YAML config file. An empty path yields the defaults. In both
// cases environment variables prefixed with EnvPrefix take precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
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

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := prefetch.ParseMode(c.Prefetch.Mode); err != nil {
		errs = append(errs, err)
	}
	if c.Prefetch.ColdFileRowGroups <= 0 {
		errs = append(errs, fmt.Errorf("prefetch.cold_file_row_groups must be positive, got %d", c.Prefetch.ColdFileRowGroups))
	}
	if c.Footer.TailLength < 8 {
		errs = append(errs, fmt.Errorf("footer.tail_length must be at least 8, got %d", c.Footer.TailLength))
	}
	if c.Store.MetadataStoreSize <= 0 {
		errs = append(errs, fmt.Errorf("store.metadata_store_size must be positive, got %d", c.Store.MetadataStoreSize))
	}
	if c.Physical.CacheEntries <= 0 {
		errs = append(errs, fmt.Errorf("physical.cache_entries must be positive, got %d", c.Physical.CacheEntries))
	}
	if c.Physical.MaxConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("physical.max_concurrency must be positive, got %d", c.Physical.MaxConcurrency))
	}
	if c.Physical.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("physical.request_timeout must be positive, got %s", c.Physical.RequestTimeout))
	}
	if c.Physical.DemandRetries < 0 {
		errs = append(errs, fmt.Errorf("physical.demand_retries must not be negative, got %d", c.Physical.DemandRetries))
	}

	return errors.Join(errs...)
}

// PrefetchConfig returns the task settings. Call Validate first.
func (c *Config) PrefetchConfig() prefetch.Config {
	mode, _ := prefetch.ParseMode(c.Prefetch.Mode)
	return prefetch.Config{Mode: mode, ColdFileRowGroups: c.Prefetch.ColdFileRowGroups}
}

// PhysicalConfig returns the physical layer settings.
func (c *Config) PhysicalConfig() physical.Config {
	return physical.Config{
		CacheEntries:   c.Physical.CacheEntries,
		MaxConcurrency: c.Physical.MaxConcurrency,
		RequestTimeout: c.Physical.RequestTimeout,
		DemandRetries:  c.Physical.DemandRetries,
	}
}
