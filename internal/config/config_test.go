package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFile_NoFileIsNoop(t *testing.T) {
	ConfigFile = ""
	require.NoError(t, LoadConfigFile())
}

func TestLoadConfigFile_FillsUnsetValuesOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobservitor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis_uri: redis://from-file:6379/0\nexecutor_region: eu-file\n"), 0o644))

	ConfigFile = path
	RedisURI = "redis://localhost:6379/0"
	ExecutorRegion = "unknown-region"
	os.Unsetenv("REDIS_URI")
	os.Setenv("EXECUTOR_REGION", "eu-env")
	defer os.Unsetenv("EXECUTOR_REGION")

	require.NoError(t, LoadConfigFile())

	assert.Equal(t, "redis://from-file:6379/0", RedisURI)
	// EXECUTOR_REGION was set in the environment, so the file must not
	// override it - env always wins over the config file.
	assert.Equal(t, "unknown-region", ExecutorRegion)
}

func TestLoadConfigFile_MissingFileErrors(t *testing.T) {
	ConfigFile = "/nonexistent/path/to/config.yaml"
	defer func() { ConfigFile = "" }()
	assert.Error(t, LoadConfigFile())
}
