package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/scantrail/pkg/engine/remediation"
	"github.com/DrSkyle/scantrail/pkg/finding"
)

func TestObserveAndWriteFile(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	latest := finding.Snapshot{
		Source: "scan.csv",
		Time:   t0.Add(48 * time.Hour),
		Findings: []finding.Finding{
			{Severity: finding.SeverityCritical, Status: finding.StatusFail},
			{Severity: finding.SeverityCritical, Status: finding.StatusFail},
			{Severity: finding.SeverityLow, Status: finding.StatusPass},
			{Severity: finding.SeverityLow, Status: finding.StatusPass},
		},
	}
	res := &remediation.Result{
		Latest: latest.Time,
		Records: []remediation.Record{
			{Severity: finding.SeverityCritical, State: remediation.StateOpen, FirstFailing: t0, Class: remediation.ClassPersistent},
			{Severity: finding.SeverityHigh, State: remediation.StateResolved, FirstFailing: t0, Resolved: t0.Add(36 * time.Hour), Class: remediation.ClassRemediated},
		},
	}

	m := New()
	m.Observe(latest, res, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.findings.WithLabelValues("critical", "FAIL")))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.passRate))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.snapshots))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.openRecords.WithLabelValues("critical")))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.mttrDays.WithLabelValues("high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.classRecords.WithLabelValues("persistent")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.classRecords.WithLabelValues("new")))

	path := filepath.Join(t.TempDir(), "scantrail.prom")
	require.NoError(t, m.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `scantrail_findings{severity="critical",status="FAIL"} 2`)
	assert.Contains(t, string(data), "scantrail_remediation_mttr_days")
}

func TestWriteFileBadPath(t *testing.T) {
	m := New()
	err := m.WriteFile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"))
	assert.Error(t, err)
}
