package withcaps

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts object lifecycle events of a Layer.
type Metrics struct {
	ObjectsCreated *prometheus.CounterVec
	ObjectsDeleted *prometheus.CounterVec
	CreateFailures *prometheus.CounterVec
	TaskDeletions  *prometheus.CounterVec
}

// NewMetrics creates the layer metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ObjectsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "withcaps_objects_created_total",
				Help: "Objects created on capability memory",
			},
			[]string{"kind"},
		),
		ObjectsDeleted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "withcaps_objects_deleted_total",
				Help: "Objects deleted and their capability memory freed",
			},
			[]string{"kind"},
		),
		CreateFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "withcaps_create_failures_total",
				Help: "Failed creations by reason",
			},
			[]string{"kind", "reason"},
		),
		TaskDeletions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "withcaps_task_deletions_total",
				Help: "Task deletions by deletion path",
			},
			[]string{"path"},
		),
	}
}

func (m *Metrics) created(kind string) {
	if m != nil {
		m.ObjectsCreated.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) deleted(kind string) {
	if m != nil {
		m.ObjectsDeleted.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) failed(kind, reason string) {
	if m != nil {
		m.CreateFailures.WithLabelValues(kind, reason).Inc()
	}
}

func (m *Metrics) taskDeleted(path deletePath) {
	if m != nil {
		m.TaskDeletions.WithLabelValues(path.String()).Inc()
	}
}
