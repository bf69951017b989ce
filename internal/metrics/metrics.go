// Package metrics provides optional Prometheus instrumentation for the
// storage core.
//
// Components take a VFSMetrics; passing nil or the no-op implementation
// disables collection with no overhead.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hxsam/appifi/internal/errs"
)

// VFSMetrics records storage operations and cache size.
type VFSMetrics interface {
	// RecordOperation records a completed VFS operation with its name,
	// duration, and outcome.
	RecordOperation(op string, duration time.Duration, err error)

	// RecordCopy records a file copy by the method that performed it.
	RecordCopy(method string, bytes int64)

	// SetNodes updates the number of cached nodes.
	SetNodes(n int)

	// SetFingerprints updates the number of distinct fingerprints.
	SetFingerprints(n int)
}

// NewRegistry returns a private registry with the Go runtime and process
// collectors attached.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ErrorLabel returns the label value used for err.
func ErrorLabel(err error) string {
	if err == nil {
		return ""
	}
	if code := errs.CodeOf(err); code != errs.OK {
		return code.String()
	}
	return "unclassified"
}

type noopVFSMetrics struct{}

// NewNoopVFSMetrics returns a VFSMetrics that discards everything.
func NewNoopVFSMetrics() VFSMetrics { return noopVFSMetrics{} }

func (noopVFSMetrics) RecordOperation(string, time.Duration, error) {}
func (noopVFSMetrics) RecordCopy(string, int64)                     {}
func (noopVFSMetrics) SetNodes(int)                                 {}
func (noopVFSMetrics) SetFingerprints(int)                          {}
