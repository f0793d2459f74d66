// Package metrics exposes Prometheus counters for clone and partial update
// traffic. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors registered for one registry.
type Metrics struct {
	clones        *prometheus.CounterVec
	recordsCloned *prometheus.CounterVec
	updates       *prometheus.CounterVec
	skippedFields *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		clones: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphclone_clones_total",
				Help: "Number of clone operations by root type and result.",
			},
			[]string{"type", "result"},
		),
		recordsCloned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphclone_records_cloned_total",
				Help: "Number of records written by committed clone operations, root included.",
			},
			[]string{"type"},
		),
		updates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphclone_partial_updates_total",
				Help: "Number of top-level partial updates by type and result.",
			},
			[]string{"type", "result"},
		),
		skippedFields: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphclone_update_skipped_fields_total",
				Help: "Number of payload keys skipped during partial updates.",
			},
			[]string{"reason"},
		),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Clone records a clone of a root type.
func (m *Metrics) Clone(typeName string, written int, err error) {
	if m == nil {
		return
	}
	m.clones.WithLabelValues(typeName, result(err)).Inc()
	if err == nil {
		m.recordsCloned.WithLabelValues(typeName).Add(float64(written))
	}
}

// Update records a top-level partial update.
func (m *Metrics) Update(typeName string, err error) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(typeName, result(err)).Inc()
}

// Skipped records a payload key the applier ignored.
func (m *Metrics) Skipped(reason string) {
	if m == nil {
		return
	}
	m.skippedFields.WithLabelValues(reason).Inc()
}
