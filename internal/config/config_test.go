package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// clearEnv blanks every config variable so the host environment cannot leak
// into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for k := range defaults {
		t.Setenv(strings.ToUpper(k), "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := load(filepath.Join(dir, ".env"), dir)
	require.NoError(t, err)
	require.Equal(t, "Lundy Weather Chat", cfg.AppName)
	require.Equal(t, ":8000", cfg.Address)
	require.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	require.Equal(t, []string{"http://localhost:5173"}, cfg.AllowOrigins)
	require.Equal(t, 10*time.Second, cfg.HTTPTimeout())
	require.Equal(t, 3, cfg.ForecastDays)
	require.Equal(t, 10, cfg.MaxLocationsPerRequest)
	require.Empty(t, cfg.OpenAIAPIKey)
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", " sk-env ")
	t.Setenv("ALLOW_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "2.5")
	t.Setenv("MAX_LOCATIONS_PER_REQUEST", "4")
	dir := t.TempDir()

	cfg, err := load(filepath.Join(dir, ".env"), dir)
	require.NoError(t, err)
	require.Equal(t, "sk-env", cfg.OpenAIAPIKey)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowOrigins)
	require.Equal(t, 2500*time.Millisecond, cfg.HTTPTimeout())
	require.Equal(t, 4, cfg.MaxLocationsPerRequest)
}

func TestLoad_YAMLFileAndEnvOverride(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weatherchat.yaml"), []byte(`
openai_model: gpt-4o
forecast_days: 5
allow_origins:
  - https://one.example
  - https://two.example
`), 0o600))
	t.Setenv("FORECAST_DAYS", "7")

	cfg, err := load(filepath.Join(dir, ".env"), dir)
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", cfg.OpenAIModel)
	require.Equal(t, 7, cfg.ForecastDays)
	require.Equal(t, []string{"https://one.example", "https://two.example"}, cfg.AllowOrigins)
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("OPENAI_MODEL=gpt-from-dotenv\n"), 0o600))
	// godotenv never overrides variables that are already set, even to "".
	require.NoError(t, os.Unsetenv("OPENAI_MODEL"))
	t.Cleanup(func() { _ = os.Unsetenv("OPENAI_MODEL") })

	cfg, err := load(envFile, dir)
	require.NoError(t, err)
	require.Equal(t, "gpt-from-dotenv", cfg.OpenAIModel)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("FORECAST_DAYS", "0")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "-1")
	dir := t.TempDir()

	_, err := load(filepath.Join(dir, ".env"), dir)
	require.Error(t, err)
	require.ErrorContains(t, err, "forecast_days")
	require.ErrorContains(t, err, "http_timeout_seconds")
}

func TestYAML_RedactsKey(t *testing.T) {
	cfg := &Config{OpenAIAPIKey: "sk-secret", OpenAIModel: "gpt-4o-mini", AllowOrigins: []string{"http://x"}}
	out, err := cfg.YAML()
	require.NoError(t, err)
	require.NotContains(t, string(out), "sk-secret")

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(out, &back))
	require.Equal(t, "********", back["openai_api_key"])
	require.Equal(t, "gpt-4o-mini", back["openai_model"])
	require.Equal(t, "sk-secret", cfg.OpenAIAPIKey, "source config must be untouched")
}
