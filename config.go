package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/pebble"
	"gopkg.in/yaml.v2"
)

type Config struct {
	ListenAddr string         `yaml:"ListenAddr"`
	DBPath     string         `yaml:"DBPath"`
	DBOptions  pebble.Options `yaml:"DBOptions"`
	// account -> bearer token
	Callers  map[string]string `yaml:"Callers"`
	Dispatch DispatchConfig    `yaml:"Dispatch"`
	Journal  JournalConfig     `yaml:"Journal"`
}

type DispatchConfig struct {
	Interval    time.Duration `yaml:"Interval"`
	Workers     int           `yaml:"Workers"`
	MaxAttempts int           `yaml:"MaxAttempts"`
	RetainSlots uint64        `yaml:"RetainSlots"`
}

// JournalConfig selects the SQL failure journal. An empty Driver disables it.
type JournalConfig struct {
	Driver string `yaml:"Driver"`
	DSN    string `yaml:"DSN"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr: ":8080",
		DBPath:     "offchaind.db",
		Dispatch: DispatchConfig{
			Interval:    time.Second,
			MaxAttempts: 50,
		},
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	yd, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(yd, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: DBPath is required")
	}
	if c.Dispatch.Interval < 0 || c.Dispatch.Workers < 0 || c.Dispatch.MaxAttempts < 0 {
		return fmt.Errorf("config: Dispatch values must not be negative")
	}
	for acc, tok := range c.Callers {
		if err := checkName("caller", acc); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if tok == "" {
			return fmt.Errorf("config: caller %q has no token", acc)
		}
	}
	return nil
}

func (c Config) dispatchOptions() DispatchOptions {
	return DispatchOptions{
		Workers:     c.Dispatch.Workers,
		MaxAttempts: c.Dispatch.MaxAttempts,
		RetainSlots: c.Dispatch.RetainSlots,
	}
}
