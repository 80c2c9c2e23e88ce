package config

import (
	"fmt"
	"time"
)

// WorkerConfig names one audio-relay worker and its control endpoint.
type WorkerConfig struct {
	Name     string `yaml:"name" json:"name"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
}

// Timeouts bounds outbound worker calls.
type Timeouts struct {
	Command time.Duration `yaml:"command" json:"command"`
	Status  time.Duration `yaml:"status" json:"status"`
}

// ListenAddr returns the address the control server binds.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.ListenPort)
}

// BaseURL returns the URL a local client uses to reach the control server.
func (c Config) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", c.ListenPort)
}

// Config represents the run_config.yaml file.
//
// Server, Port and BotBase describe the voice server the workers log in to
// and are only passed through to whoever launches the workers.
type Config struct {
	Server     string         `yaml:"server" json:"server"`
	Port       int            `yaml:"port" json:"port"`
	BotBase    string         `yaml:"bot_base" json:"bot_base"`
	Role       string         `yaml:"role" json:"role"`
	LoopsDir   string         `yaml:"loops_dir" json:"loops_dir"`
	ListenPort int            `yaml:"listen_port" json:"listen_port"`
	Workers    []WorkerConfig `yaml:"workers" json:"workers"`
	Timeouts   Timeouts       `yaml:"timeouts" json:"timeouts"`

	// PasswordHash is an argon2id hash. When set, every endpoint except
	// /health requires HTTP Basic authentication. Never served over the API.
	PasswordHash string `yaml:"password_hash,omitempty" json:"-"`
}

// Roles lists the operating profiles a console can take. Each has a
// loops_<ROLE>.txt catalog.
var Roles = []string{
	"FLIGHT", "CAPCOM", "FAO", "BME", "CPOO", "SCIENCE", "EVA", "MPC", "AA",
}

// IsRole reports whether role is one of Roles.
func IsRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}
