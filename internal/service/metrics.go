// Package service contains the firewall's application services: the
// dispatch façade, the rule loader, the async audit pipeline, and their
// metrics.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the firewall's Prometheus metrics. Pass to the services
// that record them.
type Metrics struct {
	ChecksTotal          *prometheus.CounterVec
	ReloadsTotal         prometheus.Counter
	ReloadFileErrors     prometheus.Counter
	RuleParseErrorsTotal prometheus.Counter
	RulesLoaded          *prometheus.GaugeVec
	AuditDropsTotal      prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ChecksTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "intentgate",
				Name:      "checks_total",
				Help:      "Total dispatch checks by kind and decision",
			},
			[]string{"kind", "decision"}, // decision=allow/deny
		),
		ReloadsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "intentgate",
				Name:      "reloads_total",
				Help:      "Total rule set reloads",
			},
		),
		ReloadFileErrors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "intentgate",
				Name:      "reload_file_errors_total",
				Help:      "Rule files discarded for structural errors",
			},
		),
		RuleParseErrorsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "intentgate",
				Name:      "rule_parse_errors_total",
				Help:      "Individual rules discarded for parse errors",
			},
		),
		RulesLoaded: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "intentgate",
				Name:      "rules_loaded",
				Help:      "Indexed rule entries in the live store by kind",
			},
			[]string{"kind"},
		),
		AuditDropsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "intentgate",
				Name:      "audit_drops_total",
				Help:      "Audit records dropped due to backpressure",
			},
		),
	}
}
