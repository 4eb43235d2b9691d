// Package config loads stackdeck's YAML settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting. Zero values in the file keep the defaults.
type Config struct {
	GtPath         string        `yaml:"gt_path"`
	GitPath        string        `yaml:"git_path"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	Watch          bool          `yaml:"watch"`
	PullRequests   bool          `yaml:"pull_requests"`
	LogLevel       string        `yaml:"log_level"`
	ServeAddr      string        `yaml:"serve_addr"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		GtPath:         "gt",
		GitPath:        "git",
		CommandTimeout: 30 * time.Second,
		Watch:          true,
		PullRequests:   true,
		LogLevel:       "info",
		ServeAddr:      "127.0.0.1:7433",
	}
}

// Path returns $XDG_CONFIG_HOME/stackdeck/config.yaml, falling back to
// ~/.config.
func Path() (string, error) {
	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		xdg = filepath.Join(home, ".config")
	}
	return filepath.Join(xdg, "stackdeck", "config.yaml"), nil
}

// Load reads the config at path, or the default location when path is
// empty. A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return Default(), nil
		}
		path = p
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are an error.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot work.
func (c Config) Validate() error {
	if c.GtPath == "" {
		return errors.New("gt_path must not be empty")
	}
	if c.GitPath == "" {
		return errors.New("git_path must not be empty")
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command_timeout must be positive, got %s", c.CommandTimeout)
	}
	return nil
}
