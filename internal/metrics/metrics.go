// Package metrics records run statistics in a Prometheus registry and can
// write them in the node-exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sprocscan"

// Metrics holds the collectors of one run. A nil *Metrics records nothing.
type Metrics struct {
	reg *prometheus.Registry

	// filesScanned counts files scanned per pass.
	// Labels: pass
	filesScanned *prometheus.CounterVec

	// fileErrors counts files that failed to read or parse.
	// Labels: pass
	fileErrors *prometheus.CounterVec

	// records counts extracted records by pass and kind.
	// Labels: pass, kind (literal, unresolved, pending, error)
	records *prometheus.CounterVec

	passDuration *prometheus.HistogramVec
	unresolved   prometheus.Gauge
}

// New returns Metrics backed by a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		filesScanned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pass",
			Name:      "files_scanned_total",
			Help:      "Source files scanned per pass",
		}, []string{"pass"}),
		fileErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pass",
			Name:      "file_errors_total",
			Help:      "Source files that could not be read or parsed",
		}, []string{"pass"}),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pass",
			Name:      "records_total",
			Help:      "Records extracted per pass by kind",
		}, []string{"pass", "kind"}),
		passDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pass",
			Name:      "duration_seconds",
			Help:      "Wall time of each pass",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"pass"}),
		unresolved: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unresolved_records",
			Help:      "Records still unresolved after the last pass",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// FileScanned records one scanned file.
func (m *Metrics) FileScanned(pass string) {
	if m == nil {
		return
	}
	m.filesScanned.WithLabelValues(pass).Inc()
}

// FileError records one failed file.
func (m *Metrics) FileError(pass string) {
	if m == nil {
		return
	}
	m.fileErrors.WithLabelValues(pass).Inc()
}

// Records adds n records of kind found in pass.
func (m *Metrics) Records(pass, kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.records.WithLabelValues(pass, kind).Add(float64(n))
}

// PassDone observes the duration of a pass.
func (m *Metrics) PassDone(pass string, d time.Duration) {
	if m == nil {
		return
	}
	m.passDuration.WithLabelValues(pass).Observe(d.Seconds())
}

// SetUnresolved sets the number of unresolved records.
func (m *Metrics) SetUnresolved(n int) {
	if m == nil {
		return
	}
	m.unresolved.Set(float64(n))
}

// WriteFile writes every metric to path in the textfile format.
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
