// Package metrics exports run results as Prometheus gauges for the
// node_exporter textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/DrSkyle/scantrail/pkg/engine/remediation"
	"github.com/DrSkyle/scantrail/pkg/finding"
)

const namespace = "scantrail"

// RunMetrics holds the gauges of a single analysis run on a private registry.
type RunMetrics struct {
	registry *prometheus.Registry

	findings      *prometheus.GaugeVec
	openRecords   *prometheus.GaugeVec
	classRecords  *prometheus.GaugeVec
	mttrDays      *prometheus.GaugeVec
	snapshots     prometheus.Gauge
	passRate      prometheus.Gauge
	lastTimestamp prometheus.Gauge
}

// New registers the run gauges.
func New() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		findings: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "findings",
				Help:      "Findings in the latest snapshot by severity and status",
			},
			[]string{"severity", "status"},
		),
		openRecords: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "remediation",
				Name:      "open_records",
				Help:      "Open remediation records by severity",
			},
			[]string{"severity"},
		),
		classRecords: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "remediation",
				Name:      "records",
				Help:      "Remediation records by classification (new, persistent, remediated)",
			},
			[]string{"class"},
		),
		mttrDays: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "remediation",
				Name:      "mttr_days",
				Help:      "Mean time to remediate in days by severity",
			},
			[]string{"severity"},
		),
		snapshots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshots",
			Help:      "Number of scan snapshots analysed",
		}),
		passRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pass_rate_percent",
			Help:      "Pass percentage of the latest snapshot",
		}),
		lastTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latest_scan_timestamp_seconds",
			Help:      "Unix time of the latest analysed snapshot",
		}),
	}
	m.registry.MustRegister(m.findings, m.openRecords, m.classRecords, m.mttrDays, m.snapshots, m.passRate, m.lastTimestamp)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *RunMetrics) Registry() *prometheus.Registry { return m.registry }

// Observe sets all gauges from the latest snapshot and the differ result.
func (m *RunMetrics) Observe(latest finding.Snapshot, res *remediation.Result, snapshots int) {
	var pass, total int
	for _, f := range latest.Findings {
		m.findings.WithLabelValues(f.Severity.String(), string(f.Status)).Inc()
		total++
		if f.Status == finding.StatusPass {
			pass++
		}
	}
	if total > 0 {
		m.passRate.Set(float64(pass) / float64(total) * 100)
	}
	if !latest.Time.IsZero() {
		m.lastTimestamp.Set(float64(latest.Time.Unix()))
	}
	m.snapshots.Set(float64(snapshots))

	if res == nil {
		return
	}
	c := res.Classes()
	m.classRecords.WithLabelValues(string(remediation.ClassNew)).Set(float64(c.New))
	m.classRecords.WithLabelValues(string(remediation.ClassPersistent)).Set(float64(c.Persistent))
	m.classRecords.WithLabelValues(string(remediation.ClassRemediated)).Set(float64(c.Remediated))

	for _, s := range res.MTTR() {
		label := s.Severity.String()
		m.openRecords.WithLabelValues(label).Set(float64(s.Open))
		if s.Resolved > 0 {
			m.mttrDays.WithLabelValues(label).Set(s.MeanDays)
		}
	}
}

// WriteFile atomically writes the text exposition to path.
func (m *RunMetrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
