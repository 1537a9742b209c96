package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Conversion outcomes recorded in conversions_total.
const (
	OutcomeOK              = "ok"
	OutcomeInvalidRequest  = "invalid_request"
	OutcomeUpstreamFetch   = "upstream_fetch"
	OutcomeMalformedSource = "malformed_source"
	OutcomeError           = "error"
)

// Metrics counts conversions. A nil *Metrics records nothing.
type Metrics struct {
	conversions *prometheus.CounterVec
	uris        *prometheus.CounterVec
	skipped     *prometheus.CounterVec
}

// NewMetrics registers the conversion collectors on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		conversions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "converter",
				Name:      "conversions_total",
				Help:      "Conversions by route and outcome.",
			},
			[]string{"route", "outcome"},
		),
		uris: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "converter",
				Name:      "uris_emitted_total",
				Help:      "Share links emitted after deduplication.",
			},
			[]string{"route"},
		),
		skipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "converter",
				Name:      "outbounds_skipped_total",
				Help:      "Selected outbounds that produced no share link.",
			},
			[]string{"reason"},
		),
	}
}

func (m *Metrics) observe(route string, result *SubscriptionResult, err error) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(route, Outcome(err)).Inc()
	if result == nil {
		return
	}
	m.uris.WithLabelValues(route).Add(float64(len(result.URIs)))
	for _, skip := range result.Skipped {
		m.skipped.WithLabelValues(string(skip.Reason)).Inc()
	}
}

// Outcome classifies err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrInvalidRequest):
		return OutcomeInvalidRequest
	case errors.Is(err, ErrUpstreamFetch):
		return OutcomeUpstreamFetch
	case errors.Is(err, ErrMalformedSource):
		return OutcomeMalformedSource
	default:
		return OutcomeError
	}
}
