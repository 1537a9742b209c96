package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config 汇总应用的全部配置。
type Config struct {
	HTTP     HTTPConfig              `mapstructure:"http"`
	Log      LogConfig               `mapstructure:"log"`
	Metrics  MetricsConfig           `mapstructure:"metrics"`
	CORS     CORSConfig              `mapstructure:"cors"`
	Fetch    FetchConfig             `mapstructure:"fetch"`
	Convert  ConvertConfig           `mapstructure:"convert"`
	Sub      SubConfig               `mapstructure:"sub"`
	Security SecurityConfig          `mapstructure:"security"`
	Sources  map[string]SourceConfig `mapstructure:"sources"`
}

// HTTPConfig 定义 HTTP 服务配置。
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// TrustProxyHeaders 为 true 时才采信 X-Forwarded-For / X-Real-IP，
	// 仅在反向代理之后开启，否则客户端可伪造来源 IP 绕过限流。
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`
}

// LogConfig 定义日志配置。
type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	AddSource bool   `mapstructure:"add_source"`
}

// MetricsConfig 定义 Prometheus 指标配置。
type MetricsConfig struct {
	Enabled   bool      `mapstructure:"enabled"`
	Namespace string    `mapstructure:"namespace"`
	Subsystem string    `mapstructure:"subsystem"`
	Token     string    `mapstructure:"token"`
	Buckets   []float64 `mapstructure:"buckets"`
}

// CORSConfig 定义跨域配置。
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// FetchConfig 定义拉取上游来源时的限制。
type FetchConfig struct {
	Timeout              time.Duration `mapstructure:"timeout"`
	MaxBytes             int64         `mapstructure:"max_bytes"`
	MaxRedirects         int           `mapstructure:"max_redirects"`
	AllowPrivateNetworks bool          `mapstructure:"allow_private_networks"`
	UserAgent            string        `mapstructure:"user_agent"`
}

// ConvertConfig 对应 /api/convert（调用方提供来源地址）。
type ConvertConfig struct {
	Policy      string          `mapstructure:"policy"`
	CacheMaxAge int             `mapstructure:"cache_max_age"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig 定义固定窗口限流参数。
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

// SubConfig 对应 /api/sub（固定来源）。
type SubConfig struct {
	URL                   string `mapstructure:"url"`
	Policy                string `mapstructure:"policy"`
	ProfileUpdateInterval int    `mapstructure:"profile_update_interval"`
	CacheMaxAge           int    `mapstructure:"cache_max_age"`
}

// SecurityConfig is the default security per protocol, used when an
// outbound leaves streamSettings.security empty.
type SecurityConfig struct {
	Vless  string `mapstructure:"vless"`
	Trojan string `mapstructure:"trojan"`
}

// SourceConfig 定义一个额外的命名固定来源，挂载在 /api/sub/{name}。
// viper 会把 map 键转成小写，名称因此不区分大小写。
type SourceConfig struct {
	URL    string `mapstructure:"url"`
	Policy string `mapstructure:"policy"`
}

func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var validPolicies = map[string]struct{}{"permissive": {}, "strict": {}}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("config: http.addr is required")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("config: fetch.timeout must be positive")
	}
	if c.Fetch.MaxBytes <= 0 {
		return fmt.Errorf("config: fetch.max_bytes must be positive")
	}
	if err := checkPolicy("convert.policy", c.Convert.Policy); err != nil {
		return err
	}
	if err := checkPolicy("sub.policy", c.Sub.Policy); err != nil {
		return err
	}
	if c.Convert.RateLimit.Enabled && c.Convert.RateLimit.Limit <= 0 {
		return fmt.Errorf("config: convert.rate_limit.limit must be positive when enabled")
	}
	for name, src := range c.Sources {
		if strings.TrimSpace(src.URL) == "" {
			return fmt.Errorf("config: sources.%s.url is required", name)
		}
		if err := checkPolicy("sources."+name+".policy", src.Policy); err != nil {
			return err
		}
	}
	return nil
}

func checkPolicy(key, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil
	}
	if _, ok := validPolicies[name]; !ok {
		return fmt.Errorf("config: %s: unknown policy %q", key, name)
	}
	return nil
}
