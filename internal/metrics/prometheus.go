package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// vfsMetrics is the Prometheus implementation of VFSMetrics.
type vfsMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	copiesTotal       *prometheus.CounterVec
	copyBytes         *prometheus.CounterVec
	nodes             prometheus.Gauge
	fingerprints      prometheus.Gauge
}

// NewVFSMetrics creates a Prometheus-backed VFSMetrics registered with reg.
//
// Returns a no-op implementation if reg is nil.
func NewVFSMetrics(reg prometheus.Registerer) VFSMetrics {
	if reg == nil {
		return NewNoopVFSMetrics()
	}

	return &vfsMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "appifi_vfs_operations_total",
				Help: "Total number of VFS operations by operation, status and error code",
			},
			[]string{"operation", "status", "error_code"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "appifi_vfs_operation_duration_milliseconds",
				Help: "Duration of VFS operations in milliseconds",
				Buckets: []float64{
					0.1,   // 100us
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"operation"},
		),
		copiesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "appifi_vfs_copies_total",
				Help: "Total number of file copies by copy method",
			},
			[]string{"method"},
		),
		copyBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "appifi_vfs_copy_bytes_total",
				Help: "Total bytes copied by copy method",
			},
			[]string{"method"},
		),
		nodes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "appifi_forest_nodes",
				Help: "Current number of cached forest nodes",
			},
		),
		fingerprints: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "appifi_forest_fingerprints",
				Help: "Current number of distinct file fingerprints",
			},
		),
	}
}

func (m *vfsMetrics) RecordOperation(op string, duration time.Duration, err error) {
	status := "success"
	code := ErrorLabel(err)
	if code != "" {
		status = "error"
	}

	m.operationsTotal.WithLabelValues(op, status, code).Inc()
	m.operationDuration.WithLabelValues(op).Observe(float64(duration) / float64(time.Millisecond))
}

func (m *vfsMetrics) RecordCopy(method string, bytes int64) {
	m.copiesTotal.WithLabelValues(method).Inc()
	m.copyBytes.WithLabelValues(method).Add(float64(bytes))
}

func (m *vfsMetrics) SetNodes(n int) {
	m.nodes.Set(float64(n))
}

func (m *vfsMetrics) SetFingerprints(n int) {
	m.fingerprints.Set(float64(n))
}
