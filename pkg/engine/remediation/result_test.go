package remediation

import (
	"testing"
	"time"

	"github.com/DrSkyle/scantrail/pkg/finding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(check string, sev finding.Severity, first time.Time, resolved time.Time) Record {
	r := Record{ResourceID: "r-" + check, CheckID: check, Severity: sev, FirstFailing: first, State: StateOpen, Class: ClassPersistent}
	if !resolved.IsZero() {
		r.State = StateResolved
		r.Resolved = resolved
		r.Class = ClassRemediated
	}
	return r
}

func TestMTTR(t *testing.T) {
	res := &Result{Records: []Record{
		record("a", finding.SeverityHigh, t0, t0.AddDate(0, 0, 2)),
		record("b", finding.SeverityHigh, t0, t0.AddDate(0, 0, 4)),
		record("c", finding.SeverityHigh, t0, time.Time{}),
		record("d", finding.SeverityLow, t0, time.Time{}),
		record("e", finding.SeverityCritical, t0, t0.Add(12*time.Hour)),
	}, Latest: t0.AddDate(0, 0, 10)}

	m := res.MTTR()
	require.Len(t, m, 3)
	assert.Equal(t, finding.SeverityCritical, m[0].Severity)
	assert.InDelta(t, 0.5, m[0].MeanDays, 1e-9)
	assert.Equal(t, finding.SeverityHigh, m[1].Severity)
	assert.InDelta(t, 3.0, m[1].MeanDays, 1e-9)
	assert.Equal(t, 2, m[1].Resolved)
	assert.Equal(t, 1, m[1].Open)
	assert.Equal(t, finding.SeverityLow, m[2].Severity)
	assert.Zero(t, m[2].MeanDays)

	assert.Equal(t, []Count{{"Persistent", 2}, {"Remediated", 3}}, res.ClassDistribution())
}

func TestAgeDistributionAndTopAwaiting(t *testing.T) {
	latest := t0.AddDate(2, 0, 0)
	res := &Result{Latest: latest, Records: []Record{
		record("a", finding.SeverityHigh, latest.AddDate(0, 0, -3), time.Time{}),
		record("a", finding.SeverityHigh, latest.AddDate(0, 0, -20), time.Time{}),
		record("b", finding.SeverityHigh, latest.AddDate(0, 0, -100), time.Time{}),
		record("c", finding.SeverityHigh, latest.AddDate(-2, 0, 0), time.Time{}),
		record("d", finding.SeverityHigh, latest.AddDate(0, 0, -3), latest),
	}}

	dist := res.AgeDistribution()
	require.Len(t, dist, 6)
	assert.Equal(t, 1, dist[0].Value)
	assert.Equal(t, 1, dist[1].Value)
	assert.Equal(t, 0, dist[2].Value)
	assert.Equal(t, 1, dist[3].Value)
	assert.Equal(t, 1, dist[5].Value)

	top := res.TopAwaiting(2)
	assert.Equal(t, []Count{{"a", 2}, {"b", 1}}, top)
}

func TestMonthlyRateAndResolvedPerBucket(t *testing.T) {
	res := &Result{Records: []Record{
		record("a", finding.SeverityHigh, t0, t0.AddDate(0, 1, 0)),
		record("b", finding.SeverityHigh, t0, time.Time{}),
		record("c", finding.SeverityHigh, t0.AddDate(0, 1, 0), t0.AddDate(0, 1, 1)),
	}}

	rates := res.MonthlyRemediationRate()
	require.Len(t, rates, 2)
	assert.Equal(t, "2024-01", rates[0].Month)
	assert.InDelta(t, 50.0, rates[0].Rate(), 1e-9)
	assert.InDelta(t, 100.0, rates[1].Rate(), 1e-9)

	per := res.ResolvedPerBucket(func(t time.Time) string { return t.Format("2006-01") })
	assert.Equal(t, []Count{{"2024-02", 2}}, per)
}

func TestPlanScoring(t *testing.T) {
	assert.Equal(t, 50.0+10, PriorityScore(finding.SeverityCritical, 400))
	assert.InDelta(t, 40.5, PriorityScore(finding.SeverityHigh, 5), 1e-9)
	assert.Equal(t, PriorityCritical, PriorityClass(45))
	assert.Equal(t, PriorityHigh, PriorityClass(40.5))
	assert.Equal(t, PriorityMedium, PriorityClass(25))
	assert.Equal(t, PriorityLow, PriorityClass(24.9))

	latest := t0.AddDate(0, 0, 50)
	res := &Result{Latest: latest, Records: []Record{
		record("low-old", finding.SeverityLow, t0, time.Time{}),
		record("crit-new", finding.SeverityCritical, latest, time.Time{}),
		record("high-b", finding.SeverityHigh, latest.AddDate(0, 0, -10), time.Time{}),
		record("high-a", finding.SeverityHigh, latest.AddDate(0, 0, -10), time.Time{}),
		record("done", finding.SeverityCritical, t0, latest),
	}}

	plan := res.Plan()
	require.Len(t, plan, 4)
	assert.Equal(t, "crit-new", plan[0].CheckID)
	assert.Equal(t, PriorityCritical, plan[0].Priority)
	assert.Equal(t, "high-a", plan[1].CheckID)
	assert.Equal(t, 10, plan[1].AgeDays)
	assert.Equal(t, "high-b", plan[2].CheckID)
	assert.Equal(t, "low-old", plan[3].CheckID)
	assert.InDelta(t, 25.0, plan[3].Score, 1e-9)
	assert.Equal(t, PriorityMedium, plan[3].Priority)
}
