// 文件路径: internal/api/handler/subscription.go
// 模块说明: 订阅导出接口。/api/convert 与 /api/sub 共用同一个处理器，只是 Profile 不同。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/creamcroissant/xraysub/internal/fetch"
	"github.com/creamcroissant/xraysub/internal/security"
	"github.com/creamcroissant/xraysub/internal/service"
)

// Plain-text error bodies.
const (
	MessageMissingURL    = "Missing ?url= parameter"
	MessageInvalidURL    = "Invalid ?url= parameter"
	MessageMalformedJSON = "Source URL did not return valid JSON"
	MessageInternalError = "Internal Server Error"
)

// Converter renders a subscription for a profile. *service.Converter satisfies it.
type Converter interface {
	Convert(ctx context.Context, p service.Profile, requested string) (*service.SubscriptionResult, error)
}

// SubscriptionHandler serves one conversion profile.
type SubscriptionHandler struct {
	converter Converter
	profile   service.Profile
	recorder  security.Recorder
	logger    *slog.Logger
}

func NewSubscriptionHandler(converter Converter, profile service.Profile, recorder security.Recorder, logger *slog.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionHandler{converter: converter, profile: profile, recorder: recorder, logger: logger}
}

func (h *SubscriptionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.converter == nil {
		respondText(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
		return
	}

	requested := ""
	if h.profile.Source != nil && h.profile.Source.CallerSupplied() {
		requested = r.URL.Query().Get("url")
	}
	result, err := h.converter.Convert(r.Context(), h.profile, requested)
	if err != nil {
		h.respondConvertError(w, r, requested, err)
		return
	}
	if result == nil {
		respondText(w, http.StatusInternalServerError, MessageInternalError)
		return
	}

	for key, value := range result.Headers {
		if key == "" || strings.EqualFold(key, "content-type") {
			continue
		}
		w.Header().Set(key, value)
	}
	etag := formatETag(result.ETag)
	if etag != "" {
		w.Header().Set("ETag", etag)
		if etagMatches(r.Header.Get("If-None-Match"), etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	contentType := result.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Payload)
}

func (h *SubscriptionHandler) respondConvertError(w http.ResponseWriter, r *http.Request, requested string, err error) {
	switch {
	case errors.Is(err, service.ErrMissingSourceURL):
		respondText(w, http.StatusBadRequest, MessageMissingURL)
	case errors.Is(err, service.ErrInvalidRequest):
		if h.recorder != nil && errors.Is(err, service.ErrInvalidSourceURL) {
			h.recorder.Record(r.Context(), security.Event{
				Kind:      security.EventSourceRejected,
				IP:        clientIP(r),
				UserAgent: r.UserAgent(),
				Target:    fetch.Host(requested),
			})
		}
		respondText(w, http.StatusBadRequest, MessageInvalidURL)
	case errors.Is(err, service.ErrUpstreamFetch):
		msg := h.profile.FetchFailureMessage
		if msg == "" {
			msg = service.MessageFetchFailed
		}
		respondText(w, http.StatusBadGateway, msg)
	case errors.Is(err, service.ErrMalformedSource):
		respondText(w, http.StatusUnprocessableEntity, MessageMalformedJSON)
	default:
		h.logger.Error("conversion failed", "route", h.profile.Name, "error", err)
		respondText(w, http.StatusInternalServerError, MessageInternalError)
	}
}
