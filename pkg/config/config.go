// Package config loads flowerd's process configuration from a YAML file,
// the way cmd/warren/apply.go reads and unmarshals resource manifests.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/flower/pkg/log"
)

// Config is flowerd's process configuration.
type Config struct {
	// DataDir is where the bbolt database file is created. Use ":memory:"
	// for a throwaway store.
	DataDir string `yaml:"dataDir"`

	// HealthAddr is the bind address for the /health, /ready, /live, and
	// /metrics HTTP endpoints.
	HealthAddr string `yaml:"healthAddr"`

	// ReaperInterval is how often the background sweep runs. Zero disables
	// the reaper.
	ReaperInterval time.Duration `yaml:"reaperInterval"`

	// LogLevel and LogJSON configure pkg/log.
	LogLevel string `yaml:"logLevel"`
	LogJSON  bool   `yaml:"logJSON"`
}

// Default returns the configuration flowerd runs with if no file is given.
func Default() Config {
	return Config{
		DataDir:        "./flower-data/flower.db",
		HealthAddr:     "127.0.0.1:9090",
		ReaperInterval: 5 * time.Minute,
		LogLevel:       "info",
		LogJSON:        false,
	}
}

// Load reads and parses a YAML config file on top of Default(): fields the
// file leaves unset keep their default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// LogConfig adapts Config into pkg/log's Init argument.
func (c Config) LogConfig() log.Config {
	return log.Config{
		Level:      log.Level(c.LogLevel),
		JSONOutput: c.LogJSON,
	}
}
