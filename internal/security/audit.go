// 文件路径: internal/security/audit.go
// 模块说明: 安全事件记录：被拒绝的来源地址、触发限流的客户端。
package security

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Event kinds.
const (
	EventSourceRejected = "source_rejected"
	EventRateLimited    = "rate_limited"
)

// Event 表示一次安全相关的行为。
type Event struct {
	Kind      string
	IP        string
	UserAgent string
	Target    string
	Metadata  map[string]any
	Occurred  time.Time
}

// Recorder 记录安全事件，供后续分析。
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// LoggerRecorder 将审计事件写入 slog.Logger。
type LoggerRecorder struct {
	logger *slog.Logger
}

// NewLoggerRecorder 返回记录器，写入指定 logger（为空时丢弃）。
func NewLoggerRecorder(logger *slog.Logger) *LoggerRecorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LoggerRecorder{logger: logger.With("component", "audit")}
}

// Record 实现 Recorder 并记录审计事件。
func (r *LoggerRecorder) Record(ctx context.Context, event Event) {
	if r == nil || r.logger == nil {
		return
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}
	attrs := []any{
		"kind", event.Kind,
		"ip", event.IP,
		"occurred", event.Occurred.Format(time.RFC3339Nano),
	}
	if event.UserAgent != "" {
		attrs = append(attrs, "ua", event.UserAgent)
	}
	if event.Target != "" {
		attrs = append(attrs, "target", event.Target)
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, "metadata", event.Metadata)
	}
	r.logger.WarnContext(ctx, "security event", attrs...)
}
