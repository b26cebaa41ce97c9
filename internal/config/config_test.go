package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "nonexistent")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, int64(32768), cfg.ReadLimit)
	assert.Equal(t, 8, cfg.DefaultCapacity)
	assert.Equal(t, 30*time.Second, cfg.NegotiationTimeout)
	assert.Equal(t, 64, cfg.CandidateQueueCap)
	assert.NotEmpty(t, cfg.STUNServers)
}

func TestLoadReadsEnvSelectedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	content := []byte("mode: debug\nport: 9999\ndefault_capacity: 4\nnegotiation_timeout: 10s\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), content, 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_ENV", "test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, 4, cfg.DefaultCapacity)
	assert.Equal(t, 10*time.Second, cfg.NegotiationTimeout)
	// Unset keys keep their defaults.
	assert.Equal(t, 64, cfg.CandidateQueueCap)
}
