// Package config is the runtime configuration for the tuplescript
// command.
//
// A configuration file is YAML, TOML, or JSON, chosen by its
// extension.  Command-line flags override what the file says.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-json"
	"github.com/jsccast/yaml"
)

// Config is everything "tuplescript run" needs.
type Config struct {
	Kernel  Kernel  `yaml:"kernel" toml:"kernel" json:"kernel"`
	Log     Log     `yaml:"log" toml:"log" json:"log"`
	Store   Store   `yaml:"store" toml:"store" json:"store"`
	Scripts Scripts `yaml:"scripts" toml:"scripts" json:"scripts"`

	// Storage is "none", "bolt:PATH", or "sqlite:PATH".
	Storage string `yaml:"storage" toml:"storage" json:"storage"`

	// FlushInterval is how long the storage journal waits to
	// batch writes, like "100ms".
	FlushInterval string `yaml:"flush_interval" toml:"flush_interval" json:"flush_interval"`

	StateIn  string `yaml:"state_in" toml:"state_in" json:"state_in"`
	StateOut string `yaml:"state_out" toml:"state_out" json:"state_out"`

	// Stdio couples external components through stdin and
	// stdout.
	Stdio bool `yaml:"stdio" toml:"stdio" json:"stdio"`

	// Hold keeps the process running after all tasks end.
	Hold bool `yaml:"hold" toml:"hold" json:"hold"`

	MetricsAddr string `yaml:"metrics_addr" toml:"metrics_addr" json:"metrics_addr"`
}

type Kernel struct {
	Name string `yaml:"name" toml:"name" json:"name"`
	ID   int    `yaml:"id" toml:"id" json:"id"`
}

type Log struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

type Store struct {
	Shards       int `yaml:"shards" toml:"shards" json:"shards"`
	MaxMetaDepth int `yaml:"max_meta_depth" toml:"max_meta_depth" json:"max_meta_depth"`

	// Queue is the capacity of each subscription queue.
	Queue int `yaml:"queue" toml:"queue" json:"queue"`
}

type Scripts struct {
	MaxCallDepth int `yaml:"max_call_depth" toml:"max_call_depth" json:"max_call_depth"`

	// Libraries is the directory for ECMAScript require("file://...").
	Libraries string `yaml:"libraries" toml:"libraries" json:"libraries"`
}

// Default returns the configuration used without a file.
func Default() Config {
	return Config{
		Kernel: Kernel{
			Name: "tuplescript",
			ID:   100,
		},
		Log: Log{
			Level:  "INFO",
			Format: "CONSOLE",
		},
		Store: Store{
			Shards:       16,
			MaxMetaDepth: 32,
			Queue:        64,
		},
		Scripts: Scripts{
			MaxCallDepth: 10000,
			Libraries:    ".",
		},
		Storage:       "none",
		FlushInterval: "100ms",
	}
}

// Load reads the file over the defaults.
func Load(filename string) (Config, error) {
	cfg := Default()

	bs, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(bs, &cfg)
	case ".toml":
		_, err = toml.Decode(string(bs), &cfg)
	case ".json":
		err = json.Unmarshal(bs, &cfg)
	default:
		return cfg, fmt.Errorf("load config: unknown format %q", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", filename, err)
	}

	return cfg, cfg.Validate()
}

// Flush parses FlushInterval.
func (c Config) Flush() (time.Duration, error) {
	if c.FlushInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(c.FlushInterval))
	if err != nil {
		return 0, fmt.Errorf("parse flush_interval: %w", err)
	}
	return d, nil
}

// Validate checks the values that can't be fixed with defaults.
func (c Config) Validate() error {
	if c.Kernel.ID < 0 {
		return fmt.Errorf("kernel id %d is negative", c.Kernel.ID)
	}
	if c.Store.Queue < 0 {
		return fmt.Errorf("queue capacity %d is negative", c.Store.Queue)
	}
	if c.Storage != "" && c.Storage != "none" && !strings.Contains(c.Storage, ":") {
		return fmt.Errorf("storage %q isn't SCHEME:PATH", c.Storage)
	}
	if _, err := c.Flush(); err != nil {
		return err
	}
	return nil
}
