package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aluiziolira/go-msu-finder/models"
)

// Search engines understood by the finder.
const (
	EngineCatalog   = "catalog"
	EngineWebSearch = "websearch"
)

// Output formats understood by the finder.
const (
	FormatText = "text"
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Hosts is the registry of pinned endpoints used during a run.
type Hosts struct {
	Technet    models.HostTarget `yaml:"technet"`
	Microsoft  models.HostTarget `yaml:"microsoft"`
	GoogleAPIs models.HostTarget `yaml:"googleapis"`
}

// DefaultHosts returns the well-known address/vhost pairs.
func DefaultHosts() Hosts {
	return Hosts{
		Technet:    models.HostTarget{Address: "157.56.148.23", VHost: "technet.microsoft.com"},
		Microsoft:  models.HostTarget{Address: "104.72.230.162", VHost: "www.microsoft.com"},
		GoogleAPIs: models.HostTarget{Address: "74.125.28.95", VHost: "www.googleapis.com"},
	}
}

// Unpinned returns a copy of h that resolves every host through DNS.
func (h Hosts) Unpinned() Hosts {
	h.Technet.Address = ""
	h.Microsoft.Address = ""
	h.GoogleAPIs.Address = ""
	return h
}

// Config holds finder configuration.
type Config struct {
	Keyword        string
	SearchEngine   string // catalog or websearch
	FilterPattern  string
	DryRun         bool
	APIKey         string
	SearchEngineID string

	Hosts             Hosts
	Timeout           time.Duration
	MaxAttempts       int
	RetryDelay        time.Duration
	RequestsPerSecond float64
	UserAgent         string

	OutputFile   string // empty writes to stdout
	OutputFormat string // text, csv, or json
	Quiet        bool
	MetricsAddr  string
}

// DefaultConfig returns the defaults used by the command line tool.
func DefaultConfig() *Config {
	return &Config{
		SearchEngine: EngineCatalog,
		Hosts:        DefaultHosts(),
		Timeout:      20 * time.Second,
		MaxAttempts:  3,
		RetryDelay:   5 * time.Second,
		UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		OutputFormat: FormatText,
	}
}

// NormalizeEngine maps accepted engine spellings to their canonical name.
func NormalizeEngine(engine string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineCatalog, "technet":
		return EngineCatalog, nil
	case EngineWebSearch, "google":
		return EngineWebSearch, nil
	default:
		return "", fmt.Errorf("invalid search engine: %s", engine)
	}
}

// Filter compiles the download-link filter, returning nil when none is set.
func (c *Config) Filter() (*regexp.Regexp, error) {
	if c.FilterPattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(c.FilterPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", c.FilterPattern, err)
	}
	return re, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Keyword) == "" {
		return fmt.Errorf("-q is required")
	}

	engine, err := NormalizeEngine(c.SearchEngine)
	if err != nil {
		return err
	}
	c.SearchEngine = engine
	if c.SearchEngine == EngineWebSearch {
		if c.APIKey == "" {
			return fmt.Errorf("search engine is websearch, but no API key specified")
		}
		if c.SearchEngineID == "" {
			return fmt.Errorf("search engine is websearch, but no search engine ID specified")
		}
	}

	if _, err := c.Filter(); err != nil {
		return err
	}

	for name, host := range map[string]models.HostTarget{
		"technet":    c.Hosts.Technet,
		"microsoft":  c.Hosts.Microsoft,
		"googleapis": c.Hosts.GoogleAPIs,
	} {
		if host.VHost == "" {
			return fmt.Errorf("%s host must have a vhost", name)
		}
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.OutputFormat != FormatText && c.OutputFormat != FormatCSV && c.OutputFormat != FormatJSON {
		return fmt.Errorf("output format must be text, csv, or json")
	}
	if c.OutputFormat != FormatText && c.OutputFile == "" {
		return fmt.Errorf("output format %s requires an output file", c.OutputFormat)
	}

	return nil
}
