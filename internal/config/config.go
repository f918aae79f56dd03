package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Path                string   `yaml:"path" json:"path"`
	Days                *int     `yaml:"days" json:"days"` // nil when the file does not set it
	Recursive           bool     `yaml:"recursive" json:"recursive"`
	LogFile             string   `yaml:"log_file" json:"log_file"`                             // Appended, created if missing
	ProtectedPaths      []string `yaml:"protected_paths" json:"protected_paths"`               // Extra paths the safety guard refuses
	HistoryDB           string   `yaml:"history_db" json:"history_db"`                         // SQLite deletion history, empty disables it
	MetricsFile         string   `yaml:"metrics_file" json:"metrics_file"`                     // Prometheus textfile output, empty disables it
	MaxDeletesPerSecond float64  `yaml:"max_deletes_per_second" json:"max_deletes_per_second"` // 0 = unlimited
}

var (
	ErrInvalidPath  = errors.New("invalid path")
	ErrNegativeDays = errors.New("days cannot be negative")
	ErrNegativeRate = errors.New("max_deletes_per_second cannot be negative")
)

// Load reads and validates a YAML configuration file
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges and normalizes the output paths to a clean
// absolute form. The target path is kept as written so log lines show it the
// way the operator typed it. Validate runs again after command-line flags
// are merged in.
func (c *Config) Validate() error {
	if c.Days != nil && *c.Days < 0 {
		return ErrNegativeDays
	}
	if c.MaxDeletesPerSecond < 0 {
		return ErrNegativeRate
	}

	var err error
	if c.LogFile, err = cleanOptional(c.LogFile); err != nil {
		return fmt.Errorf("log_file: %w", err)
	}
	if c.HistoryDB, err = cleanOptional(c.HistoryDB); err != nil {
		return fmt.Errorf("history_db: %w", err)
	}
	if c.MetricsFile, err = cleanOptional(c.MetricsFile); err != nil {
		return fmt.Errorf("metrics_file: %w", err)
	}

	cleaned := make([]string, 0, len(c.ProtectedPaths))
	for _, p := range c.ProtectedPaths {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return fmt.Errorf("protected_paths: %w", err)
		}
		cleaned = append(cleaned, cp)
	}
	c.ProtectedPaths = cleaned

	return nil
}

// cleanOptional leaves empty values alone
func cleanOptional(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	return cleanAbsolute(p)
}

// cleanAbsolute resolves relative paths against the working directory,
// so a command line like --path ./backups keeps working.
func cleanAbsolute(p string) (string, error) {
	if p == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidPath, p, err)
	}
	return filepath.Clean(abs), nil
}
