package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envURL     = "IDENT_URL"
	envTimeout = "IDENT_TIMEOUT"

	defaultURL     = "http://localhost:8080"
	defaultTimeout = 10 * time.Second
)

// fileConfig is ~/.ident/config.yaml.
type fileConfig struct {
	URL     string `yaml:"url,omitempty"`
	Timeout string `yaml:"timeout,omitempty"`
	Retries *int   `yaml:"retries,omitempty"`
	Output  string `yaml:"output,omitempty"`
}

// settings is the resolved configuration. Precedence: flag > env > file >
// default.
type settings struct {
	URL     string
	Timeout time.Duration
	Retries int
	Output  string
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ident", "config.yaml")
}

// loadFileConfig reads path. A missing file is an empty config.
func loadFileConfig(path string) (*fileConfig, error) {
	if path == "" {
		return &fileConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &fileConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// resolve merges the file config with the environment. Flags are applied
// by the caller on top.
func (c *fileConfig) resolve(getenv func(string) string) (settings, error) {
	s := settings{URL: defaultURL, Timeout: defaultTimeout, Retries: 3, Output: "text"}

	if c.URL != "" {
		s.URL = c.URL
	}
	if c.Timeout != "" {
		d, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return s, fmt.Errorf("config timeout: %w", err)
		}
		s.Timeout = d
	}
	if c.Retries != nil {
		s.Retries = *c.Retries
	}
	if c.Output != "" {
		s.Output = c.Output
	}

	if v := getenv(envURL); v != "" {
		s.URL = v
	}
	if v := getenv(envTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return s, fmt.Errorf("%s: %w", envTimeout, err)
		}
		s.Timeout = d
	}
	return s, nil
}
