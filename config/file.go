package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout accepted by LoadFile. Zero values leave the
// corresponding Config field untouched.
type File struct {
	APIKey            string  `yaml:"apikey"`
	SearchEngineID    string  `yaml:"cx"`
	SearchEngine      string  `yaml:"search_engine"`
	UserAgent         string  `yaml:"user_agent"`
	Timeout           string  `yaml:"timeout"`
	RetryDelay        string  `yaml:"retry_delay"`
	MaxAttempts       int     `yaml:"max_attempts"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MetricsAddr       string  `yaml:"metrics_addr"`
	Hosts             Hosts   `yaml:"hosts"`
}

// LoadFile reads the YAML file at path and applies it to c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return c.applyFile(f)
}

func (c *Config) applyFile(f File) error {
	if f.APIKey != "" {
		c.APIKey = f.APIKey
	}
	if f.SearchEngineID != "" {
		c.SearchEngineID = f.SearchEngineID
	}
	if f.SearchEngine != "" {
		c.SearchEngine = f.SearchEngine
	}
	if f.UserAgent != "" {
		c.UserAgent = f.UserAgent
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		c.Timeout = d
	}
	if f.RetryDelay != "" {
		d, err := time.ParseDuration(f.RetryDelay)
		if err != nil {
			return fmt.Errorf("retry_delay: %w", err)
		}
		c.RetryDelay = d
	}
	if f.MaxAttempts != 0 {
		c.MaxAttempts = f.MaxAttempts
	}
	if f.RequestsPerSecond != 0 {
		c.RequestsPerSecond = f.RequestsPerSecond
	}
	if f.MetricsAddr != "" {
		c.MetricsAddr = f.MetricsAddr
	}

	// hosts override per field so a file can repin a single endpoint
	mergeHost(&c.Hosts.Technet.Address, f.Hosts.Technet.Address)
	mergeHost(&c.Hosts.Technet.VHost, f.Hosts.Technet.VHost)
	mergeHost(&c.Hosts.Microsoft.Address, f.Hosts.Microsoft.Address)
	mergeHost(&c.Hosts.Microsoft.VHost, f.Hosts.Microsoft.VHost)
	mergeHost(&c.Hosts.GoogleAPIs.Address, f.Hosts.GoogleAPIs.Address)
	mergeHost(&c.Hosts.GoogleAPIs.VHost, f.Hosts.GoogleAPIs.VHost)
	return nil
}

func mergeHost(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
