package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/thruflo/voiceloops/internal/auth"
	"gopkg.in/yaml.v3"
)

// Default values for Config.
const (
	DefaultConfigFile     = "run_config.yaml"
	DefaultRole           = "FLIGHT"
	DefaultLoopsDir       = "LOOPS"
	DefaultListenPort     = 8080
	DefaultCommandTimeout = time.Second
	DefaultStatusTimeout  = 500 * time.Millisecond
)

// DefaultWorkers returns the stock three-worker pool on ports 6001-6003.
func DefaultWorkers() []WorkerConfig {
	return []WorkerConfig{
		{Name: "BOT1", Endpoint: "http://127.0.0.1:6001"},
		{Name: "BOT2", Endpoint: "http://127.0.0.1:6002"},
		{Name: "BOT3", Endpoint: "http://127.0.0.1:6003"},
	}
}

// DefaultTimeouts returns the stock worker call timeouts.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Command: DefaultCommandTimeout,
		Status:  DefaultStatusTimeout,
	}
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Role:       DefaultRole,
		LoopsDir:   DefaultLoopsDir,
		ListenPort: DefaultListenPort,
		Workers:    DefaultWorkers(),
		Timeouts:   DefaultTimeouts(),
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// Exists reports whether a config file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LoadConfig reads and parses the config file at path.
// If the file doesn't exist, returns default config.
// Applies defaults for any missing fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	ApplyDefaults(&cfg)

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields and normalizes the role to upper
// case.
func ApplyDefaults(cfg *Config) {
	cfg.Role = strings.ToUpper(strings.TrimSpace(cfg.Role))
	if cfg.Role == "" {
		cfg.Role = DefaultRole
	}
	if cfg.LoopsDir == "" {
		cfg.LoopsDir = DefaultLoopsDir
	}
	if cfg.ListenPort == 0 {
		cfg.ListenPort = DefaultListenPort
	}
	if len(cfg.Workers) == 0 {
		cfg.Workers = DefaultWorkers()
	}
	if cfg.Timeouts.Command == 0 {
		cfg.Timeouts.Command = DefaultCommandTimeout
	}
	if cfg.Timeouts.Status == 0 {
		cfg.Timeouts.Status = DefaultStatusTimeout
	}
}

// ValidateConfig checks that all config values are valid.
func ValidateConfig(cfg *Config) error {
	if !IsRole(cfg.Role) {
		return ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", cfg.Role)}
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return ValidationError{Field: "port", Message: "must be between 0 and 65535"}
	}
	if cfg.ListenPort < 1 || cfg.ListenPort > 65535 {
		return ValidationError{Field: "listen_port", Message: "must be between 1 and 65535"}
	}
	if cfg.Timeouts.Command <= 0 {
		return ValidationError{Field: "timeouts.command", Message: "must be positive"}
	}
	if cfg.Timeouts.Status <= 0 {
		return ValidationError{Field: "timeouts.status", Message: "must be positive"}
	}
	if len(cfg.Workers) == 0 {
		return ValidationError{Field: "workers", Message: "at least one worker is required"}
	}

	if cfg.PasswordHash != "" {
		if err := auth.ValidateHash(cfg.PasswordHash); err != nil {
			return ValidationError{Field: "password_hash", Message: err.Error()}
		}
	}

	seen := make(map[string]bool, len(cfg.Workers))
	for i, w := range cfg.Workers {
		field := fmt.Sprintf("workers[%d]", i)
		if w.Name == "" {
			return ValidationError{Field: field + ".name", Message: "required field is empty"}
		}
		if seen[w.Name] {
			return ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate worker %q", w.Name)}
		}
		seen[w.Name] = true

		u, err := url.Parse(w.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ValidationError{Field: field + ".endpoint", Message: "must be an http(s) URL with a host"}
		}
	}
	return nil
}

// SaveConfig validates cfg and writes it to path, replacing any existing
// file atomically.
func SaveConfig(path string, cfg *Config) error {
	ApplyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".run_config-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}
