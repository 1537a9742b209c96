package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.False(t, cfg.HTTP.TrustProxyHeaders)
	assert.Equal(t, 15*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, int64(5*1024*1024), cfg.Fetch.MaxBytes)
	assert.Equal(t, 5, cfg.Fetch.MaxRedirects)
	assert.False(t, cfg.Fetch.AllowPrivateNetworks)
	assert.Equal(t, "v2rayN/6.0", cfg.Fetch.UserAgent)
	assert.Equal(t, "permissive", cfg.Convert.Policy)
	assert.Equal(t, 300, cfg.Convert.CacheMaxAge)
	assert.Equal(t, DefaultSourceURL, cfg.Sub.URL)
	assert.Equal(t, "strict", cfg.Sub.Policy)
	assert.Equal(t, 1, cfg.Sub.ProfileUpdateInterval)
	assert.Equal(t, "none", cfg.Security.Vless)
	assert.Equal(t, "tls", cfg.Security.Trojan)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Empty(t, cfg.Sources)
}

func TestLoad_FileAndEnv(t *testing.T) {
	chdir(t, t.TempDir())
	path := writeConfig(t, `
http:
  addr: 127.0.0.1:9000
  trust_proxy_headers: true
fetch:
  timeout: 3s
  max_bytes: 1024
convert:
  policy: strict
  rate_limit:
    limit: 5
    window: 10s
security:
  trojan: none
sources:
  backup:
    url: https://backup.example/sub
    policy: permissive
  US:
    url: https://us.example/sub
`)
	t.Setenv("XRAYSUB_FETCH_TIMEOUT", "7s")
	t.Setenv("XRAYSUB_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, 7*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, int64(1024), cfg.Fetch.MaxBytes)
	assert.Equal(t, "strict", cfg.Convert.Policy)
	assert.Equal(t, 5, cfg.Convert.RateLimit.Limit)
	assert.Equal(t, 10*time.Second, cfg.Convert.RateLimit.Window)
	assert.Equal(t, "none", cfg.Security.Trojan)
	assert.Equal(t, "none", cfg.Security.Vless)
	require.Contains(t, cfg.Sources, "backup")
	assert.Equal(t, "https://backup.example/sub", cfg.Sources["backup"].URL)
	assert.True(t, cfg.HTTP.TrustProxyHeaders)
	// viper folds map keys to lower case.
	require.Contains(t, cfg.Sources, "us")
	assert.Equal(t, "https://us.example/sub", cfg.Sources["us"].URL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_DotEnvSourceURL(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SOURCE_URL=https://env.example/sub\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://env.example/sub", cfg.Sub.URL)
}

func TestLoad_RejectsUnknownPolicy(t *testing.T) {
	chdir(t, t.TempDir())
	path := writeConfig(t, "sub:\n  policy: loose\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sub.policy")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_Sources(t *testing.T) {
	cfg := &Config{
		HTTP:    HTTPConfig{Addr: ":8080"},
		Fetch:   FetchConfig{Timeout: time.Second, MaxBytes: 1},
		Sources: map[string]SourceConfig{"x": {}},
	}
	assert.Error(t, cfg.Validate())

	cfg.Sources["x"] = SourceConfig{URL: "https://x.example", Policy: "Strict"}
	assert.NoError(t, cfg.Validate())
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", LogConfig{Level: "DEBUG"}.SlogLevel().String())
	assert.Equal(t, "WARN", LogConfig{Level: "warning"}.SlogLevel().String())
	assert.Equal(t, "INFO", LogConfig{}.SlogLevel().String())
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
