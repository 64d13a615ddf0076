package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings for a single batch run.
type Config struct {
	InputFile    string        `yaml:"input"`
	OutputFile   string        `yaml:"output"`
	ErrorLog     string        `yaml:"log"`
	OutputFormat string        `yaml:"format"` // csv or dual
	Overwrite    bool          `yaml:"overwrite"`
	Verbose      bool          `yaml:"verbose"`
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	ScriptIndex  int           `yaml:"script_index"`
	ScriptMarker string        `yaml:"script_marker"`
	MaxAgeDays   int           `yaml:"max_age_days"`
	CacheSize    int           `yaml:"cache_size"`
	MetricsAddr  string        `yaml:"metrics_addr"`
}

// DefaultConfig returns the defaults for the store page layout the extractor
// was written against.
func DefaultConfig() *Config {
	return &Config{
		InputFile:    "input.csv",
		OutputFile:   "output.csv",
		ErrorLog:     "errors.csv",
		OutputFormat: "csv",
		Timeout:      30 * time.Second,
		UserAgent:    "iTunes/12.1.2 (Macintosh; OS X 10.10.3) AppleWebKit/0600.5.17",
		ScriptIndex:  2,
		ScriptMarker: "its.serverData=",
		MaxAgeDays:   365 * 2,
		CacheSize:    0,
	}
}

// LoadFile overlays the YAML document at path onto c. Keys missing from the
// file leave the current values untouched.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from APPCHANGELOG_* environment variables.
func (c *Config) ApplyEnv() error {
	if value, ok := EnvString("APPCHANGELOG_INPUT"); ok {
		c.InputFile = value
	}
	if value, ok := EnvString("APPCHANGELOG_OUTPUT"); ok {
		c.OutputFile = value
	}
	if value, ok := EnvString("APPCHANGELOG_LOG"); ok {
		c.ErrorLog = value
	}
	if value, ok := EnvString("APPCHANGELOG_METRICS_ADDR"); ok {
		c.MetricsAddr = value
	}
	if value, ok, err := EnvDuration("APPCHANGELOG_TIMEOUT"); err != nil {
		return fmt.Errorf("invalid APPCHANGELOG_TIMEOUT: %w", err)
	} else if ok {
		c.Timeout = value
	}
	if value, ok, err := EnvInt("APPCHANGELOG_CACHE_SIZE"); err != nil {
		return fmt.Errorf("invalid APPCHANGELOG_CACHE_SIZE: %w", err)
	} else if ok {
		c.CacheSize = value
	}
	return nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.InputFile == "" {
		return fmt.Errorf("input file cannot be empty")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.ErrorLog == "" {
		return fmt.Errorf("error log cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv or dual")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.ScriptIndex < 0 {
		return fmt.Errorf("script index cannot be negative")
	}
	if c.ScriptMarker == "" {
		return fmt.Errorf("script marker cannot be empty")
	}
	if c.MaxAgeDays < 0 {
		return fmt.Errorf("max age days cannot be negative")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative")
	}
	return nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
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

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// EnvDuration parses key as a Go duration ("10s", "1m30s").
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, err
	}
	return d, true, nil
}
