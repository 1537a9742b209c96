// 文件路径: internal/service/subscription.go
// 模块说明: 订阅转换流水线：拉取来源、解析文档、筛选出站、生成分享链接、去重并 base64 编码。
package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/creamcroissant/xraysub/internal/fetch"
	"github.com/creamcroissant/xraysub/internal/protocol"
	"github.com/creamcroissant/xraysub/internal/xray"
)

// Fetcher retrieves a source body. *fetch.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// SubscriptionResult 包含订阅内容与元数据。
type SubscriptionResult struct {
	Payload     []byte
	ContentType string
	ETag        string
	Headers     map[string]string

	ConversionID string
	URIs         []string
	Documents    int
	Skipped      []protocol.Skip
}

// Converter runs the conversion pipeline. It holds no per-request state
// and is safe for concurrent use.
type Converter struct {
	fetcher Fetcher
	logger  *slog.Logger
	metrics *Metrics
}

// NewConverter 组装转换服务依赖。metrics 可以为 nil。
func NewConverter(fetcher Fetcher, logger *slog.Logger, metrics *Metrics) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{fetcher: fetcher, logger: logger, metrics: metrics}
}

// Convert resolves the profile's source, fetches it and renders the
// subscription. requested is the caller-supplied URL, if any.
func (c *Converter) Convert(ctx context.Context, p Profile, requested string) (*SubscriptionResult, error) {
	id := uuid.NewString()
	logger := c.logger.With("conversion_id", id, "route", p.label())

	result, err := c.convert(ctx, p, requested, id, logger)
	c.metrics.observe(p.label(), result, err)
	return result, err
}

// ConvertBody runs the pipeline on an already fetched body.
func (c *Converter) ConvertBody(p Profile, body []byte) (*SubscriptionResult, error) {
	id := uuid.NewString()
	logger := c.logger.With("conversion_id", id, "route", p.label())

	result, err := c.render(p, body, id, logger)
	c.metrics.observe(p.label(), result, err)
	return result, err
}

func (c *Converter) convert(ctx context.Context, p Profile, requested, id string, logger *slog.Logger) (*SubscriptionResult, error) {
	if p.Source == nil {
		return nil, fmt.Errorf("service: profile %q has no source", p.label())
	}
	if c.fetcher == nil {
		return nil, fmt.Errorf("service: converter has no fetcher")
	}
	target, err := p.Source.Resolve(requested)
	if err != nil {
		return nil, err
	}

	body, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, c.fetchError(p, target, err, logger)
	}
	return c.render(p, body, id, logger)
}

// FetchFailure maps a fetch failure onto the taxonomy. Only caller-supplied
// URLs can be rejected as bad input; a broken fixed source is an upstream fault.
func FetchFailure(p Profile, err error) error {
	var fe *fetch.Error
	if p.Source != nil && p.Source.CallerSupplied() && errors.As(err, &fe) &&
		(fe.Kind == fetch.KindInvalidURL || fe.Kind == fetch.KindForbidden) {
		return fmt.Errorf("%w: %w", ErrInvalidSourceURL, err)
	}
	return fmt.Errorf("%w: %w", ErrUpstreamFetch, err)
}

func (c *Converter) fetchError(p Profile, target string, err error, logger *slog.Logger) error {
	mapped := FetchFailure(p, err)
	var fe *fetch.Error
	_ = errors.As(err, &fe)
	if errors.Is(mapped, ErrInvalidSourceURL) {
		logger.Info("source url rejected", "source_host", fetch.Host(target), "kind", fe.Kind.String())
		return mapped
	}
	attrs := []any{"source_host", fetch.Host(target), "error", err}
	if fe != nil {
		attrs = append(attrs, "kind", fe.Kind.String())
		if fe.Status != 0 {
			attrs = append(attrs, "status", fe.Status)
		}
	}
	logger.Warn("source fetch failed", attrs...)
	return mapped
}

func (c *Converter) render(p Profile, body []byte, id string, logger *slog.Logger) (*SubscriptionResult, error) {
	docs, err := xray.Parse(body)
	if err != nil {
		logger.Warn("source is not valid json", "bytes", len(body), "error", err)
		return nil, fmt.Errorf("%w: %w", ErrMalformedSource, err)
	}

	policy := p.Policy
	if policy == nil {
		policy = protocol.PermissivePolicy{}
	}
	built, err := protocol.NewGeneralBuilder(p.Security).Build(protocol.BuildRequest{
		Documents: docs,
		Policy:    policy,
	})
	if err != nil {
		return nil, err
	}

	for _, skip := range built.Skipped {
		logger.Debug("outbound skipped",
			"document", skip.Document,
			"remarks", skip.Remarks,
			"protocol", skip.Protocol,
			"tag", skip.Tag,
			"reason", string(skip.Reason),
		)
	}
	logger.Debug("conversion finished",
		"documents", len(docs),
		"policy", policy.Name(),
		"selected", built.Selected,
		"uris", len(built.URIs),
	)

	return &SubscriptionResult{
		Payload:      built.Payload,
		ContentType:  built.ContentType,
		ETag:         computeSubscriptionETag(built.Payload),
		Headers:      p.responseHeaders(),
		ConversionID: id,
		URIs:         built.URIs,
		Documents:    len(docs),
		Skipped:      built.Skipped,
	}, nil
}

// computeSubscriptionETag 用于生成订阅内容的 ETag。
func computeSubscriptionETag(payload []byte) string {
	sum := sha1.Sum(payload)
	return hex.EncodeToString(sum[:])
}
