// 文件路径: internal/api/router.go
// 模块说明: chi 路由：两个订阅入口、命名来源、健康检查与 Prometheus 指标。
package api

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/creamcroissant/xraysub/internal/api/handler"
	"github.com/creamcroissant/xraysub/internal/api/middleware"
	"github.com/creamcroissant/xraysub/internal/config"
	"github.com/creamcroissant/xraysub/internal/security"
	"github.com/creamcroissant/xraysub/internal/service"
)

// Services 汇总路由依赖的服务。
type Services struct {
	Converter   handler.Converter
	RateLimiter *security.RateLimiter
	Recorder    security.Recorder
	// Registry backs /metrics. Nil disables both HTTP metrics and the endpoint.
	Registry *prometheus.Registry
}

// Profiles 是每个入口的转换配置。
type Profiles struct {
	Convert service.Profile
	Sub     service.Profile
	// Named are served at /api/sub/{name}. Names match case-insensitively,
	// since viper lower-cases map keys.
	Named map[string]service.Profile
}

// RouterConfig 汇总路由层面的可调参数。
type RouterConfig struct {
	Metrics   config.MetricsConfig
	CORS      config.CORSConfig
	RateLimit config.RateLimitConfig

	// TrustProxyHeaders mounts RealIP. Off, clients are keyed by the socket peer.
	TrustProxyHeaders bool
}

// NewRouter wires the conversion endpoints.
func NewRouter(logger *slog.Logger, services Services, profiles Profiles, cfg RouterConfig) http.Handler {
	if services.Converter == nil {
		panic("router requires Converter")
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(chiMiddleware.RealIP)
	}

	metricsEnabled := cfg.Metrics.Enabled && services.Registry != nil
	if metricsEnabled {
		mCfg := middleware.DefaultMetricsConfig()
		if cfg.Metrics.Namespace != "" {
			mCfg.Namespace = cfg.Metrics.Namespace
		}
		if cfg.Metrics.Subsystem != "" {
			mCfg.Subsystem = cfg.Metrics.Subsystem
		}
		if len(cfg.Metrics.Buckets) > 0 {
			mCfg.Buckets = cfg.Metrics.Buckets
		}
		r.Use(middleware.NewMetrics(services.Registry, mCfg).Middleware())
	}

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsCfg.AllowedOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(
		middleware.CORS(corsCfg),
		middleware.AccessLog(middleware.AccessLogConfig{
			Logger: logger,
			Slow:   3 * time.Second,
			Skip:   []string{"/health", "/healthz", "/metrics"},
		}),
		chiMiddleware.Recoverer,
		chiMiddleware.Compress(5),
	)

	r.Get("/healthz", handler.Health)
	// Alias for Docker health check
	r.Get("/health", handler.Health)

	if metricsEnabled {
		metricsHandler := promhttp.HandlerFor(services.Registry, promhttp.HandlerOpts{Registry: services.Registry})
		if cfg.Metrics.Token != "" {
			r.With(middleware.MetricsGuard(cfg.Metrics.Token)).Handle("/metrics", metricsHandler)
		} else {
			r.Handle("/metrics", metricsHandler)
		}
	}

	registerAPIRoutes(r, logger, services, profiles, cfg)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		logger.Debug("unmapped route hit", "method", req.Method, "path", req.URL.Path)
		http.NotFound(w, req)
	})

	return r
}

func registerAPIRoutes(root chi.Router, logger *slog.Logger, services Services, profiles Profiles, cfg RouterConfig) {
	convertHandler := handler.NewSubscriptionHandler(services.Converter, profiles.Convert, services.Recorder, logger)
	subHandler := handler.NewSubscriptionHandler(services.Converter, profiles.Sub, services.Recorder, logger)

	named := make(map[string]http.Handler, len(profiles.Named))
	for name, profile := range profiles.Named {
		named[strings.ToLower(name)] = handler.NewSubscriptionHandler(services.Converter, profile, services.Recorder, logger)
	}

	root.Route("/api", func(api chi.Router) {
		// /api/convert fetches caller-supplied URLs, so it is the only
		// route behind the rate limiter.
		api.Group(func(limited chi.Router) {
			if cfg.RateLimit.Enabled {
				limited.Use(middleware.RateLimit(middleware.RateLimitConfig{
					Limiter:  services.RateLimiter,
					Recorder: services.Recorder,
					Logger:   logger,
					Limit:    cfg.RateLimit.Limit,
					Window:   cfg.RateLimit.Window,
				}))
			}
			limited.Method(http.MethodGet, "/convert", convertHandler)
		})

		api.Method(http.MethodGet, "/sub", subHandler)
		api.Get("/sub/{name}", func(w http.ResponseWriter, req *http.Request) {
			h, ok := named[strings.ToLower(chi.URLParam(req, "name"))]
			if !ok {
				http.NotFound(w, req)
				return
			}
			h.ServeHTTP(w, req)
		})
	})

	if len(named) > 0 {
		names := make([]string, 0, len(named))
		for name := range named {
			names = append(names, name)
		}
		sort.Strings(names)
		logger.Info("named sources mounted", "sources", names)
	}
}
