package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIKey      = "MSUFINDER_APIKEY"
	EnvEngineID    = "MSUFINDER_CX"
	EnvMetricsAddr = "MSUFINDER_METRICS_ADDR"
	EnvRPS         = "MSUFINDER_RPS"
)

// EnvString returns the trimmed value of key and whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvFloat parses key as a float.
func EnvFloat(key string) (float64, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// ApplyEnv overrides c with values from the environment.
func (c *Config) ApplyEnv() error {
	if value, ok := EnvString(EnvAPIKey); ok {
		c.APIKey = value
	}
	if value, ok := EnvString(EnvEngineID); ok {
		c.SearchEngineID = value
	}
	if value, ok := EnvString(EnvMetricsAddr); ok {
		c.MetricsAddr = value
	}
	if value, ok, err := EnvFloat(EnvRPS); err != nil {
		return err
	} else if ok {
		c.RequestsPerSecond = value
	}
	return nil
}
