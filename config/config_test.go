package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "eip155:84532", cfg.Payment.Network)
	assert.Equal(t, time.Hour, cfg.Payment.ReplayTTL)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
agent:
  name: sleep-advisor
  exampleQueries:
    - "What helps with sleep?"
payment:
  payTo: "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
  price: "0.01"
  network: "eip155:8453"
  maxTimeoutSeconds: 120
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "sleep-advisor", cfg.Agent.Name)
	assert.Equal(t, "eip155:8453", cfg.Payment.Network)
	assert.Equal(t, 120, cfg.Payment.MaxTimeoutSeconds)
	// Untouched defaults survive.
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "application/json", cfg.Payment.MimeType)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
