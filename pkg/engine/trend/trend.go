// Package trend aggregates findings over time buckets.
package trend

import (
	"sort"
	"time"

	"github.com/DrSkyle/scantrail/pkg/finding"
)

// Row is one count of the bucket × account × severity × status table.
type Row struct {
	Bucket    string
	AccountID string
	Severity  finding.Severity
	Status    finding.Status
	Count     int
}

// Issue is a check ranked by failing findings over the whole period.
type Issue struct {
	CheckID    string
	CheckTitle string
	Service    string
	Failures   int
}

// Line is one named series aligned with Table.Buckets.
type Line struct {
	Name   string
	Values []float64
}

// Table is a bucket-indexed set of series.
type Table struct {
	Buckets []string
	Lines   []Line
}

// Empty reports whether there is nothing to plot.
func (t Table) Empty() bool { return len(t.Buckets) == 0 || len(t.Lines) == 0 }

// Slice is one labeled share of a distribution.
type Slice struct {
	Label string
	Value int
}

// Aggregator computes trend views over a fixed finding table.
type Aggregator struct {
	Findings    []finding.Finding
	Granularity Granularity

	// ProjectOf resolves account IDs to project names. Optional.
	ProjectOf func(accountID string) string
}

// New resolves g against the span of findings.
func New(findings []finding.Finding, g Granularity) *Aggregator {
	first, last := finding.Span(findings)
	return &Aggregator{
		Findings:    findings,
		Granularity: Resolve(g, first, last),
	}
}

func (a *Aggregator) bucket(f finding.Finding) string {
	return a.Granularity.Bucket(f.ScanTime)
}

// Buckets lists the distinct bucket labels in ascending order.
func (a *Aggregator) Buckets() []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range a.Findings {
		b := a.bucket(f)
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	sort.Strings(out)
	return out
}

// Aggregate counts findings by (bucket, account, severity, status).
func (a *Aggregator) Aggregate() []Row {
	type key struct {
		bucket, account string
		sev             finding.Severity
		status          finding.Status
	}
	counts := map[key]int{}
	for _, f := range a.Findings {
		counts[key{a.bucket(f), f.AccountID, f.Severity, f.Status}]++
	}

	rows := make([]Row, 0, len(counts))
	for k, n := range counts {
		rows = append(rows, Row{Bucket: k.bucket, AccountID: k.account, Severity: k.sev, Status: k.status, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		x, y := rows[i], rows[j]
		if x.Bucket != y.Bucket {
			return x.Bucket < y.Bucket
		}
		if x.AccountID != y.AccountID {
			return x.AccountID < y.AccountID
		}
		if x.Severity != y.Severity {
			return x.Severity > y.Severity
		}
		return x.Status < y.Status
	})
	return rows
}

// TopIssues ranks checks by failing findings, ties broken by check ID.
// n <= 0 returns every failing check.
func (a *Aggregator) TopIssues(n int) []Issue {
	index := map[string]*Issue{}
	for _, f := range a.Findings {
		if !f.Failing() {
			continue
		}
		is, ok := index[f.CheckID]
		if !ok {
			is = &Issue{CheckID: f.CheckID, Service: f.Service}
			index[f.CheckID] = is
		}
		if is.CheckTitle == "" {
			is.CheckTitle = f.CheckTitle
		}
		is.Failures++
	}

	out := make([]Issue, 0, len(index))
	for _, is := range index {
		out = append(out, *is)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Failures != out[j].Failures {
			return out[i].Failures > out[j].Failures
		}
		return out[i].CheckID < out[j].CheckID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// table builds one line per name using keyFn to pick the line of each finding.
// Findings for which keyFn returns "" are not counted.
func (a *Aggregator) table(names []string, keyFn func(finding.Finding) string) Table {
	buckets := a.Buckets()
	col := make(map[string]int, len(buckets))
	for i, b := range buckets {
		col[b] = i
	}

	lines := make([]Line, len(names))
	row := make(map[string]int, len(names))
	for i, n := range names {
		lines[i] = Line{Name: n, Values: make([]float64, len(buckets))}
		row[n] = i
	}

	for _, f := range a.Findings {
		k := keyFn(f)
		i, ok := row[k]
		if !ok {
			continue
		}
		lines[i].Values[col[a.bucket(f)]]++
	}
	return Table{Buckets: buckets, Lines: lines}
}

// TotalTable is the number of findings per bucket.
func (a *Aggregator) TotalTable() Table {
	if len(a.Findings) == 0 {
		return Table{}
	}
	return a.table([]string{"Total"}, func(finding.Finding) string { return "Total" })
}

// StatusTable counts findings per status per bucket.
func (a *Aggregator) StatusTable() Table {
	present := map[finding.Status]bool{}
	for _, f := range a.Findings {
		present[f.Status] = true
	}
	var names []string
	for _, s := range []finding.Status{finding.StatusPass, finding.StatusFail, finding.StatusOther} {
		if present[s] {
			names = append(names, string(s))
		}
	}
	return a.table(names, func(f finding.Finding) string { return string(f.Status) })
}

// SeverityTable counts findings per severity per bucket, most severe first.
func (a *Aggregator) SeverityTable() Table {
	present := map[finding.Severity]bool{}
	for _, f := range a.Findings {
		present[f.Severity] = true
	}
	order := append(append([]finding.Severity{}, finding.Severities...), finding.SeverityUnknown)
	var names []string
	for _, s := range order {
		if present[s] {
			names = append(names, s.String())
		}
	}
	return a.table(names, func(f finding.Finding) string { return f.Severity.String() })
}

// TopChecksTable tracks failing counts of the n worst checks per bucket.
func (a *Aggregator) TopChecksTable(n int) Table {
	top := a.TopIssues(n)
	names := make([]string, len(top))
	for i, is := range top {
		names[i] = is.CheckID
	}
	return a.table(names, func(f finding.Finding) string {
		if !f.Failing() {
			return ""
		}
		return f.CheckID
	})
}

// ServiceDistribution counts findings per service within a day of the latest scan.
// The n largest services are returned, ties by name.
func (a *Aggregator) ServiceDistribution(n int) []Slice {
	_, last := finding.Span(a.Findings)
	cutoff := last.Add(-24 * time.Hour)

	counts := map[string]int{}
	for _, f := range a.Findings {
		if f.ScanTime.Before(cutoff) {
			continue
		}
		svc := f.Service
		if svc == "" {
			svc = "unknown"
		}
		counts[svc]++
	}
	return topSlices(counts, n)
}

func topSlices(counts map[string]int, n int) []Slice {
	out := make([]Slice, 0, len(counts))
	for k, v := range counts {
		out = append(out, Slice{Label: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Label < out[j].Label
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
