package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, ioutil.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"client": {"base_url": "https://api.example.com/"}}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.Client.BaseURL)
	assert.Equal(t, DefaultTimeoutSeconds, cfg.Client.TimeoutSeconds)
	assert.Equal(t, "/api/feedback", cfg.Client.FeedbackPath)
	assert.Equal(t, "/api/appliances", cfg.Client.AppliancesPath)
	assert.Equal(t, DefaultStoragePath, cfg.Storage.Path)
	assert.Equal(t, 3000, cfg.API.Port)
	assert.True(t, cfg.Security.Enforce)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("WATT_BASE_URL", "http://10.0.0.2:3000/")
	t.Setenv("WATT_STORAGE_PATH", "/tmp/other.db")
	path := writeConfig(t, `{}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.2:3000", cfg.Client.BaseURL)
	assert.Equal(t, "/tmp/other.db", cfg.Storage.Path)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"scheme":  `{"client": {"base_url": "ftp://x"}}`,
		"route":   `{"client": {"feedback_path": "api/feedback"}}`,
		"format":  `{"logging": {"format": "xml"}}`,
		"timeout": `{"client": {"timeout_seconds": -1}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
			assert.Equal(t, ErrInvalidConfig, errors.Cause(err))
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("WATT_BASE_URL", "https://watt.example.com/")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://watt.example.com", cfg.Client.BaseURL)

	t.Setenv("WATT_BASE_URL", "ftp://nope")
	_, err = FromEnv()
	assert.Equal(t, ErrInvalidConfig, errors.Cause(err))
}
