package cannondb

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config carries the tunables a database is opened with. Page geometry and
// the key/value limits are fixed at creation time and persisted in the file
// header; cache size and auto-commit are per-handle.
type Config struct {
	PageSize     int  `mapstructure:"page_size"`
	MaxKeySize   int  `mapstructure:"max_key_size"`
	MaxValueSize int  `mapstructure:"max_value_size"`
	CacheSize    int  `mapstructure:"cache_size"`
	InMemory     bool `mapstructure:"in_memory"`
	AutoCommit   bool `mapstructure:"auto_commit"`
}

const (
	DefaultPageSize     = 8192
	DefaultMaxKeySize   = 32
	DefaultMaxValueSize = 256
	DefaultCacheSize    = 512
)

func DefaultConfig() Config {
	return Config{
		PageSize:     DefaultPageSize,
		MaxKeySize:   DefaultMaxKeySize,
		MaxValueSize: DefaultMaxValueSize,
		CacheSize:    DefaultCacheSize,
		AutoCommit:   true,
	}
}

// withDefaults fills unset numeric fields. AutoCommit is a plain bool, so
// build your Config from DefaultConfig() rather than a struct literal when
// you want the auto-commit default.
func (c Config) withDefaults() Config {
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxKeySize == 0 {
		c.MaxKeySize = DefaultMaxKeySize
	}
	if c.MaxValueSize == 0 {
		c.MaxValueSize = DefaultMaxValueSize
	}
	if c.CacheSize == 0 {
		c.CacheSize = DefaultCacheSize
	}
	return c
}

func (c Config) validate() error {
	if c.PageSize < 512 || c.PageSize > 65536 || c.PageSize&(c.PageSize-1) != 0 {
		return fmt.Errorf("page_size %d: must be a power of two in [512, 65536]", c.PageSize)
	}
	if c.MaxKeySize < 9 || c.MaxKeySize > 65535 {
		return fmt.Errorf("max_key_size %d: must be in [9, 65535]", c.MaxKeySize)
	}
	if c.MaxValueSize < 9 || c.MaxValueSize > 65535 {
		return fmt.Errorf("max_value_size %d: must be in [9, 65535]", c.MaxValueSize)
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("cache_size %d: must be positive", c.CacheSize)
	}
	return nil
}

// LoadConfig reads a yaml config file into a Config, with the documented
// defaults for any key the file leaves out.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("page_size", DefaultPageSize)
	v.SetDefault("max_key_size", DefaultMaxKeySize)
	v.SetDefault("max_value_size", DefaultMaxValueSize)
	v.SetDefault("cache_size", DefaultCacheSize)
	v.SetDefault("in_memory", false)
	v.SetDefault("auto_commit", true)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
