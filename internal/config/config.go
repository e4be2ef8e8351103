package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Watcher WatcherConfig  `yaml:"watcher"`
	Models  map[string]int `yaml:"models"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

type WatcherConfig struct {
	SessionRoot       string        `yaml:"session_root"`
	StateDir          string        `yaml:"state_dir"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	DiscoverWindow    time.Duration `yaml:"discover_window"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
}

// Default returns the built-in configuration used when no config file
// exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Watcher: WatcherConfig{
			PollInterval:      time.Second,
			DiscoverWindow:    10 * time.Minute,
			SnapshotInterval:  30 * time.Second,
			BroadcastThrottle: 100 * time.Millisecond,
		},
		Models: map[string]int{
			"default": 200000,
		},
	}
}

// Load reads the config file at path over the defaults. A missing file is
// not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MaxContextTokens returns the context ceiling for a model, falling back
// to the configured default.
func (c *Config) MaxContextTokens(model string) int {
	if n, ok := c.Models[model]; ok {
		return n
	}
	if n, ok := c.Models["default"]; ok {
		return n
	}
	return 200000
}
