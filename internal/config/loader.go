package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultSourceURL is the upstream served by /api/sub when sub.url is unset.
const DefaultSourceURL = "https://silent-bush-1523.alirezaa-jafari-98.workers.dev/sub/normal/rKNcg_%40x_F_p_xHP?app=xray"

// Load reads configuration from file, .env and XRAYSUB_* environment
// variables, in increasing priority. An empty path searches ./config.yaml
// and /etc/xraysub/config.yaml; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/xraysub/")
	}

	v.SetEnvPrefix("XRAYSUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		slog.Debug("config file not found, using defaults and environment")
	} else {
		slog.Debug("using config file", "path", v.ConfigFileUsed())
	}

	if err := loadDotEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", "0.0.0.0:8080")
	v.SetDefault("http.shutdown_timeout", "15s")
	v.SetDefault("http.trust_proxy_headers", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.add_source", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "xraysub")
	v.SetDefault("metrics.subsystem", "http")
	v.SetDefault("metrics.token", "")

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.max_bytes", 5*1024*1024)
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.allow_private_networks", false)
	v.SetDefault("fetch.user_agent", "v2rayN/6.0")

	v.SetDefault("convert.policy", "permissive")
	v.SetDefault("convert.cache_max_age", 300)
	v.SetDefault("convert.rate_limit.enabled", true)
	v.SetDefault("convert.rate_limit.limit", 30)
	v.SetDefault("convert.rate_limit.window", "1m")

	v.SetDefault("sub.url", DefaultSourceURL)
	v.SetDefault("sub.policy", "strict")
	v.SetDefault("sub.profile_update_interval", 1)
	v.SetDefault("sub.cache_max_age", 300)

	v.SetDefault("security.vless", "none")
	v.SetDefault("security.trojan", "tls")
}

func loadDotEnv(v *viper.Viper) error {
	for _, dir := range []string{".", ".."} {
		file := filepath.Clean(filepath.Join(dir, ".env"))
		if _, err := os.Stat(file); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("stat .env: %w", err)
		}

		// A separate instance keeps .env keys out of the main key space.
		envViper := viper.New()
		envViper.SetConfigFile(file)
		envViper.SetConfigType("env")
		if err := envViper.ReadInConfig(); err != nil {
			return fmt.Errorf("read .env: %w", err)
		}
		bindLegacyEnv(v, envViper)
	}
	return nil
}

// bindLegacyEnv maps flat deployment variables onto config keys. They are
// installed as defaults, so the config file and XRAYSUB_* variables win.
func bindLegacyEnv(target, source *viper.Viper) {
	mappings := map[string]string{
		"HTTP_ADDR":   "http.addr",
		"LOG_LEVEL":   "log.level",
		"LOG_FORMAT":  "log.format",
		"SOURCE_URL":  "sub.url",
		"USER_AGENT":  "fetch.user_agent",
		"FETCH_LIMIT": "fetch.max_bytes",
	}
	for oldKey, newKey := range mappings {
		if val := source.GetString(oldKey); val != "" {
			target.SetDefault(newKey, val)
		}
	}
}
