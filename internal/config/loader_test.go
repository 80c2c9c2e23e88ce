package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Default(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), DefaultConfigFile))
	require.NoError(t, err)

	assert.Equal(t, DefaultRole, cfg.Role)
	assert.Equal(t, DefaultLoopsDir, cfg.LoopsDir)
	assert.Equal(t, DefaultListenPort, cfg.ListenPort)
	assert.Equal(t, ":8080", cfg.ListenAddr())
	assert.Equal(t, "http://127.0.0.1:8080", cfg.BaseURL())
	assert.Equal(t, DefaultWorkers(), cfg.Workers)
	assert.Equal(t, DefaultTimeouts(), cfg.Timeouts)
}

func TestLoadConfig_ValidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	content := `server: voice.example.org
port: 64738
bot_base: MCC
role: capcom
loops_dir: /srv/loops
listen_port: 9090
workers:
  - name: A
    endpoint: http://10.0.0.5:7001
timeouts:
  command: 2s
  status: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "voice.example.org", cfg.Server)
	assert.Equal(t, 64738, cfg.Port)
	assert.Equal(t, "MCC", cfg.BotBase)
	assert.Equal(t, "CAPCOM", cfg.Role, "role is normalized to upper case")
	assert.Equal(t, "/srv/loops", cfg.LoopsDir)
	assert.Equal(t, 9090, cfg.ListenPort)
	assert.Equal(t, []WorkerConfig{{Name: "A", Endpoint: "http://10.0.0.5:7001"}}, cfg.Workers)
	assert.Equal(t, 2*time.Second, cfg.Timeouts.Command)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeouts.Status)
}

func TestLoadConfig_PartialFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("role: EVA\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "EVA", cfg.Role)
	assert.Equal(t, DefaultWorkers(), cfg.Workers)
	assert.Equal(t, DefaultStatusTimeout, cfg.Timeouts.Status)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("role: [unclosed\n"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"unknown role", func(c *Config) { c.Role = "JANITOR" }, "role"},
		{"port out of range", func(c *Config) { c.Port = 70000 }, "port"},
		{"listen port out of range", func(c *Config) { c.ListenPort = -1 }, "listen_port"},
		{"zero command timeout", func(c *Config) { c.Timeouts.Command = 0 }, "timeouts.command"},
		{"negative status timeout", func(c *Config) { c.Timeouts.Status = -time.Second }, "timeouts.status"},
		{"no workers", func(c *Config) { c.Workers = nil }, "workers"},
		{"unnamed worker", func(c *Config) { c.Workers[1].Name = "" }, "workers[1].name"},
		{"duplicate worker", func(c *Config) { c.Workers[2].Name = "BOT1" }, "workers[2].name"},
		{"plaintext password", func(c *Config) { c.PasswordHash = "hunter2" }, "password_hash"},
		{"bad endpoint scheme", func(c *Config) { c.Workers[0].Endpoint = "ftp://x:1" }, "workers[0].endpoint"},
		{"endpoint without host", func(c *Config) { c.Workers[0].Endpoint = "http://" }, "workers[0].endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := ValidateConfig(&cfg)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, IsValidationError(err))
			assert.Equal(t, tt.field, err.(ValidationError).Field)
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	assert.False(t, Exists(path))

	cfg := DefaultConfig()
	cfg.Server = "voice.example.org"
	cfg.Port = 64738
	cfg.BotBase = "MCC"
	cfg.Role = "science"

	require.NoError(t, SaveConfig(path, &cfg))
	assert.True(t, Exists(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "SCIENCE", loaded.Role)
	assert.Equal(t, cfg, *loaded)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is cleaned up")
}

func TestSaveConfigRejectsInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	cfg := DefaultConfig()
	cfg.Role = "NOBODY"

	err := SaveConfig(path, &cfg)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.False(t, Exists(path))
}

func TestIsRole(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRole("FLIGHT"))
	assert.True(t, IsRole("AA"))
	assert.False(t, IsRole("flight"))
	assert.False(t, IsRole(""))
}
