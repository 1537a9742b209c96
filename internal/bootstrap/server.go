// 文件路径: internal/bootstrap/server.go
// 模块说明: 构建 http.Server，写超时需要覆盖一次完整的上游拉取。
package bootstrap

import (
	"net/http"
	"time"

	"github.com/creamcroissant/xraysub/internal/config"
)

// NewHTTPServer constructs a baseline http.Server with conservative defaults.
func NewHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	writeTimeout := 30 * time.Second
	if budget := cfg.Fetch.Timeout + 10*time.Second; budget > writeTimeout {
		writeTimeout = budget
	}
	return &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}
}
