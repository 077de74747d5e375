// Package config loads flowbot.yaml: environment expansion, YAML parsing,
// defaults merging, and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/flowbotio/flowbot/pkg/api"
	"github.com/flowbotio/flowbot/pkg/cache"
	"github.com/flowbotio/flowbot/pkg/tasks"
)

// Config is the parsed flowbot.yaml.
type Config struct {
	HTTP  api.Config   `yaml:"http"`
	Cache cache.Config `yaml:"cache"`
	Queue tasks.Config `yaml:"queues"`

	Shutdown ShutdownConfig `yaml:"shutdown"`

	// ScenariosDir holds per-tenant scenario YAML trees.
	ScenariosDir string `yaml:"scenarios_dir"`
	// TriggersDir holds per-tenant trigger files and system overlays.
	TriggersDir string `yaml:"triggers_dir"`
	// TenantsConfigPath points at the static tenant list used when no
	// database is configured.
	TenantsConfigPath string `yaml:"tenants_config_path"`
	// BackupDir receives state snapshots.
	BackupDir string `yaml:"backup_dir"`

	// Plugins carries per-plugin sections verbatim. Each plugin parses its
	// own map; the loader does not interpret them.
	Plugins map[string]map[string]any `yaml:"plugins"`
}

// ShutdownConfig bounds the teardown sequence.
type ShutdownConfig struct {
	// PluginTimeout is the per-component budget during graceful shutdown.
	PluginTimeout time.Duration `yaml:"plugin_timeout"`
}

// defaultConfig returns the built-in settings. User YAML is merged on top.
func defaultConfig() *Config {
	return &Config{
		HTTP: api.Config{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Cache:    *cache.DefaultConfig(),
		Queue:    *tasks.DefaultConfig(),
		Shutdown: ShutdownConfig{PluginTimeout: 3 * time.Second},

		ScenariosDir: "scenarios",
		TriggersDir:  "triggers",
	}
}

// Load reads, expands, parses, merges, and validates the configuration file.
// A missing file yields the built-in defaults.
func Load(path string, log *slog.Logger) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("config file not found, using defaults", "path", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	data = ExpandEnv(data, log)

	var user Config
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Non-zero user values override defaults; unset fields keep them.
	if err := mergo.Merge(cfg, &user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	if len(c.Queue.Queues) == 0 {
		return fmt.Errorf("queues.queues must name at least one queue")
	}
	if c.Cache.CleanupSampleSize < 0 {
		return fmt.Errorf("cache.cleanup_sample_size must not be negative")
	}
	if c.Cache.CleanupExpiredThreshold < 0 || c.Cache.CleanupExpiredThreshold > 1 {
		return fmt.Errorf("cache.cleanup_expired_threshold must be within [0, 1]")
	}
	if c.Shutdown.PluginTimeout <= 0 {
		return fmt.Errorf("shutdown.plugin_timeout must be positive")
	}
	if c.ScenariosDir == "" {
		return fmt.Errorf("scenarios_dir must be set")
	}
	if c.TriggersDir == "" {
		return fmt.Errorf("triggers_dir must be set")
	}
	return nil
}

// Plugin returns the raw section for one plugin, or an empty map.
func (c *Config) Plugin(name string) map[string]any {
	if section, ok := c.Plugins[name]; ok {
		return section
	}
	return map[string]any{}
}
