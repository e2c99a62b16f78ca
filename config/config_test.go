package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReadsEnvironment(t *testing.T) {
	t.Setenv("MQ_RABBIT_EXCHANGE", "innotter-test")

	cfg, err := New()
	require.NoError(t, err)

	cfg.SetDefault("MQ_RABBIT_EXCHANGE", "innotter")
	assert.Equal(t, "innotter-test", cfg.GetString("MQ_RABBIT_EXCHANGE"))
}

func TestDefaultsApplyWhenUnset(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	cfg.SetDefault("STORE_TYPE", "ram")
	assert.Equal(t, "ram", cfg.GetString("STORE_TYPE"))
}

func TestMissingDotEnvIsNotAnError(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := New()
	require.NoError(t, err)
}

func TestDotEnvIsRead(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STORE_TYPE=badger\n"), 0o600))
	t.Chdir(dir)

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.GetString("STORE_TYPE"))
}

func TestStringOr(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	cfg.Set("SERVICE_NAME", "  ")
	assert.Equal(t, "innotter-stats", cfg.StringOr("SERVICE_NAME", "innotter-stats"))

	cfg.Set("SERVICE_NAME", "projector")
	assert.Equal(t, "projector", cfg.StringOr("SERVICE_NAME", "innotter-stats"))
}
