// Package config loads the host configuration from defaults, an optional
// YAML file and SOURCEHOST_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g.
// SOURCEHOST_WASM_MEMORY_PAGES.
const EnvPrefix = "SOURCEHOST"

type Config struct {
	PluginPaths []string       `mapstructure:"plugin_paths"`
	LogLevel    string         `mapstructure:"log_level"`
	Wasm        WasmConfig     `mapstructure:"wasm"`
	Net         NetConfig      `mapstructure:"net"`
	Settings    SettingsConfig `mapstructure:"settings"`
}

// WasmConfig holds Wasm runtime configuration.
type WasmConfig struct {
	// Memory limit per module (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages"`
	// Log every host call.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory. Empty keeps compiled code in memory.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum concurrent instances.
	MaxInstances int `mapstructure:"max_instances"`
	// Guest call timeout (seconds).
	ExecutionTimeout int `mapstructure:"execution_timeout"`
	// Host allocation start for modules without __heap_base.
	HeapBase uint32 `mapstructure:"heap_base"`
}

// NetConfig holds the HTTP client configuration shared by all plugins.
type NetConfig struct {
	UserAgent string `mapstructure:"user_agent"`
	// Per-request timeout (seconds).
	RequestTimeout int   `mapstructure:"request_timeout"`
	MaxBodySize    int64 `mapstructure:"max_body_size"`
	// Consecutive transport failures that open a plugin's circuit.
	BreakerFailures uint32 `mapstructure:"breaker_failures"`
	// How long an open circuit stays open (seconds).
	BreakerTimeout int `mapstructure:"breaker_timeout"`
}

// SettingsConfig selects the plugin settings store.
type SettingsConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `mapstructure:"driver"`
	// Path of the SQLite database.
	Path string `mapstructure:"path"`
}

// Load reads configuration. An empty path uses defaults and the
// environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("plugin_paths", []string{"./plugins"})
	v.SetDefault("log_level", "info")

	// Wasm defaults
	v.SetDefault("wasm.memory_pages", 256) // 16MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "")
	v.SetDefault("wasm.max_instances", 100)
	v.SetDefault("wasm.execution_timeout", 60)
	v.SetDefault("wasm.heap_base", 128*1024)

	// Net defaults
	v.SetDefault("net.user_agent", "")
	v.SetDefault("net.request_timeout", 30)
	v.SetDefault("net.max_body_size", 32<<20)
	v.SetDefault("net.breaker_failures", 5)
	v.SetDefault("net.breaker_timeout", 30)

	// Settings defaults
	v.SetDefault("settings.driver", "sqlite")
	v.SetDefault("settings.path", "./sourcehost.db")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.Settings.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("settings.driver: unknown driver %q (must be one of: sqlite, memory)", c.Settings.Driver)
	}
	if c.Settings.Driver == "sqlite" && c.Settings.Path == "" {
		return fmt.Errorf("settings.path is required for the sqlite driver")
	}
	if c.Wasm.ExecutionTimeout < 0 || c.Net.RequestTimeout < 0 || c.Net.BreakerTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return level, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Timeout returns the guest call timeout.
func (w WasmConfig) Timeout() time.Duration {
	return time.Duration(w.ExecutionTimeout) * time.Second
}

func (n NetConfig) Timeout() time.Duration {
	return time.Duration(n.RequestTimeout) * time.Second
}

func (n NetConfig) BreakerOpenTimeout() time.Duration {
	return time.Duration(n.BreakerTimeout) * time.Second
}
