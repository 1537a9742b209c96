// 文件路径: internal/bootstrap/infra.go
// 模块说明: 组装共享基础设施：缓存、限流、审计、拉取器、指标注册表、转换服务与各入口 Profile。
package bootstrap

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/creamcroissant/xraysub/internal/api"
	"github.com/creamcroissant/xraysub/internal/cache"
	"github.com/creamcroissant/xraysub/internal/config"
	"github.com/creamcroissant/xraysub/internal/fetch"
	"github.com/creamcroissant/xraysub/internal/protocol"
	"github.com/creamcroissant/xraysub/internal/security"
	"github.com/creamcroissant/xraysub/internal/service"
)

// Infrastructure bundles the long-lived collaborators of the HTTP server.
type Infrastructure struct {
	Cache       cache.Store
	RateLimiter *security.RateLimiter
	Audit       security.Recorder
	Fetcher     *fetch.Fetcher
	Registry    *prometheus.Registry
	Converter   *service.Converter
}

// BuildInfrastructure wires default implementations from configuration.
func BuildInfrastructure(cfg *config.Config, logger *slog.Logger) (*Infrastructure, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required / 配置不能为空")
	}

	cacheStore := cache.NewStore(cache.Options{
		Prefix:          "xraysub",
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: time.Minute,
	})
	rateLimiter, err := security.NewRateLimiter(cacheStore)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var (
		registry *prometheus.Registry
		metrics  *service.Metrics
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = service.NewMetrics(registry, cfg.Metrics.Namespace)
	}

	fetcher := NewFetcher(cfg.Fetch)
	return &Infrastructure{
		Cache:       cacheStore,
		RateLimiter: rateLimiter,
		Audit:       security.NewLoggerRecorder(logger),
		Fetcher:     fetcher,
		Registry:    registry,
		Converter:   service.NewConverter(fetcher, logger, metrics),
	}, nil
}

// NewFetcher maps fetch settings onto the fetcher.
func NewFetcher(cfg config.FetchConfig) *fetch.Fetcher {
	return fetch.New(fetch.Options{
		Timeout:              cfg.Timeout,
		MaxBytes:             cfg.MaxBytes,
		MaxRedirects:         cfg.MaxRedirects,
		UserAgent:            cfg.UserAgent,
		AllowPrivateNetworks: cfg.AllowPrivateNetworks,
	})
}

// SecurityDefaults converts the configured table.
func SecurityDefaults(cfg config.SecurityConfig) protocol.SecurityDefaults {
	return protocol.SecurityDefaults{
		protocol.ProtocolVless:  strings.TrimSpace(cfg.Vless),
		protocol.ProtocolTrojan: strings.TrimSpace(cfg.Trojan),
	}
}

// BuildProfiles derives one conversion profile per route.
func BuildProfiles(cfg *config.Config) (api.Profiles, error) {
	defaults := SecurityDefaults(cfg.Security)

	convertPolicy, err := protocol.PolicyByName(cfg.Convert.Policy)
	if err != nil {
		return api.Profiles{}, fmt.Errorf("convert.policy: %w", err)
	}
	subPolicy, err := protocol.PolicyByName(cfg.Sub.Policy)
	if err != nil {
		return api.Profiles{}, fmt.Errorf("sub.policy: %w", err)
	}

	profiles := api.Profiles{
		Convert: service.ConvertProfile(convertPolicy, defaults, cfg.Convert.CacheMaxAge),
		Sub:     service.SubscriptionProfile("sub", cfg.Sub.URL, subPolicy, defaults, cfg.Sub.CacheMaxAge, cfg.Sub.ProfileUpdateInterval),
		Named:   make(map[string]service.Profile, len(cfg.Sources)),
	}
	for name, src := range cfg.Sources {
		policyName := src.Policy
		if policyName == "" {
			policyName = cfg.Sub.Policy
		}
		policy, err := protocol.PolicyByName(policyName)
		if err != nil {
			return api.Profiles{}, fmt.Errorf("sources.%s.policy: %w", name, err)
		}
		name = strings.ToLower(name)
		profiles.Named[name] = service.SubscriptionProfile("sub:"+name, src.URL, policy, defaults, cfg.Sub.CacheMaxAge, cfg.Sub.ProfileUpdateInterval)
	}
	return profiles, nil
}
