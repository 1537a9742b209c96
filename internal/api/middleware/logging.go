// 文件路径: internal/api/middleware/logging.go
// 模块说明: 访问日志中间件。来源地址常带订阅令牌，只记录主机名与参数名。
package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/creamcroissant/xraysub/internal/fetch"
)

// AccessLogConfig 访问日志配置
type AccessLogConfig struct {
	Logger *slog.Logger
	// Slow marks successful requests slower than this as WARN. Upstream
	// fetches dominate latency, so keep it above the fetch timeout's typical case.
	Slow time.Duration
	Skip []string
}

// AccessLog logs one line per request after the response is written.
func AccessLog(cfg AccessLogConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	slow := cfg.Slow
	if slow <= 0 {
		slow = 3 * time.Second
	}
	skip := make(map[string]struct{}, len(cfg.Skip))
	for _, p := range cfg.Skip {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			reqID := chiMiddleware.GetReqID(r.Context())
			if reqID != "" {
				w.Header().Set("X-Request-ID", reqID)
			}
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			began := time.Now()
			next.ServeHTTP(ww, r)
			elapsed := time.Since(began)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []slog.Attr{
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("route", routePattern(r)),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", elapsed),
				slog.Int("bytes", ww.BytesWritten()),
				slog.String("client_ip", clientIP(r)),
			}
			if keys := queryKeys(r.URL.Query()); keys != "" {
				attrs = append(attrs, slog.String("query_keys", keys))
			}
			if host := fetch.Host(r.URL.Query().Get("url")); host != "" {
				attrs = append(attrs, slog.String("source_host", host))
			}
			if ua := r.UserAgent(); ua != "" {
				attrs = append(attrs, slog.String("user_agent", ua))
			}

			level, msg := slog.LevelInfo, "request completed"
			switch {
			case status >= 500:
				level, msg = slog.LevelError, "request failed"
			case status >= 400:
				level, msg = slog.LevelWarn, "request rejected"
			case elapsed > slow:
				level, msg = slog.LevelWarn, "slow request"
			}
			logger.LogAttrs(r.Context(), level, msg, attrs...)
		})
	}
}

func queryKeys(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
