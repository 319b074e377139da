package metrics

import (
	"time"

	"github.com/de-tools/waste-atlas/pkg/models/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "waste_atlas"

// Metrics holds the prometheus collectors of the audit pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	transitions      *prometheus.CounterVec
	ruleFailures     *prometheus.CounterVec
	auditRuns        *prometheus.CounterVec
	auditDuration    prometheus.Histogram
	inventory        *prometheus.GaugeVec
	skippedResources *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "findings_transitions_total",
				Help:      "Finding lifecycle transitions by finding type and transition",
			},
			[]string{"finding_type", "transition"},
		),
		ruleFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_failures_total",
				Help:      "Rule evaluations that failed during an audit",
			},
			[]string{"rule"},
		),
		auditRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_runs_total",
				Help:      "Completed audit runs by status",
			},
			[]string{"status"},
		),
		auditDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "audit_duration_seconds",
				Help:      "Wall time of audit runs",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		inventory: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "inventory_resources_total",
				Help:      "Resources observed by the latest sweep by resource type",
			},
			[]string{"resource_type"},
		),
		skippedResources: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skipped_resources_total",
				Help:      "Malformed resources skipped by rules and sweeps",
			},
			[]string{"rule"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.transitions, m.ruleFailures, m.auditRuns, m.auditDuration, m.inventory, m.skippedResources,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Transition(findingType string, transition domain.Transition, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.transitions.WithLabelValues(findingType, string(transition)).Add(float64(n))
}

func (m *Metrics) RuleFailed(rule string) {
	if m == nil {
		return
	}
	m.ruleFailures.WithLabelValues(rule).Inc()
}

func (m *Metrics) Skipped(rule string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skippedResources.WithLabelValues(rule).Add(float64(n))
}

func (m *Metrics) AuditFinished(status domain.AuditStatus, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.auditRuns.WithLabelValues(string(status)).Inc()
	m.auditDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) InventoryObserved(resourceType domain.ResourceType, n int) {
	if m == nil {
		return
	}
	m.inventory.WithLabelValues(string(resourceType)).Set(float64(n))
}
