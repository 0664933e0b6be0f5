package trend

import (
	"sort"
	"time"

	"github.com/DrSkyle/scantrail/pkg/finding"
)

// AccountMetric summarizes an account at its most recent scan.
type AccountMetric struct {
	AccountID   string
	AccountName string
	Project     string
	LatestScan  time.Time
	Total       int
	Pass        int
	Fail        int
	Other       int
	// FailBySeverity counts failing findings per severity.
	FailBySeverity map[finding.Severity]int
}

// PassRate is the share of PASS results in percent.
func (m AccountMetric) PassRate() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Pass) / float64(m.Total) * 100
}

// Current returns the findings of each account's latest scan, in input order.
// When two files of an account share the latest scan time, the one with the
// greater source name wins, matching snapshot order.
func (a *Aggregator) Current() []finding.Finding {
	type scan struct {
		time   time.Time
		source string
	}
	latest := map[string]scan{}
	for _, f := range a.Findings {
		cur, ok := latest[f.AccountID]
		if !ok || f.ScanTime.After(cur.time) || (f.ScanTime.Equal(cur.time) && f.Source > cur.source) {
			latest[f.AccountID] = scan{time: f.ScanTime, source: f.Source}
		}
	}
	var out []finding.Finding
	for _, f := range a.Findings {
		if l := latest[f.AccountID]; f.ScanTime.Equal(l.time) && f.Source == l.source {
			out = append(out, f)
		}
	}
	return out
}

// AccountMetrics computes per-account compliance at each account's latest scan, sorted by account ID.
func (a *Aggregator) AccountMetrics() []AccountMetric {
	index := map[string]*AccountMetric{}
	for _, f := range a.Current() {
		m, ok := index[f.AccountID]
		if !ok {
			m = &AccountMetric{
				AccountID:      f.AccountID,
				LatestScan:     f.ScanTime,
				FailBySeverity: map[finding.Severity]int{},
			}
			if a.ProjectOf != nil {
				m.Project = a.ProjectOf(f.AccountID)
			}
			index[f.AccountID] = m
		}
		if m.AccountName == "" {
			m.AccountName = f.AccountName
		}
		m.Total++
		switch f.Status {
		case finding.StatusPass:
			m.Pass++
		case finding.StatusFail:
			m.Fail++
			m.FailBySeverity[f.Severity]++
		default:
			m.Other++
		}
	}

	out := make([]AccountMetric, 0, len(index))
	for _, m := range index {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// Overview holds headline numbers for the whole period.
type Overview struct {
	First       time.Time
	Last        time.Time
	Granularity Granularity
	Snapshots   int
	Findings    int
	Accounts    int
	Regions     int
	Resources   int
	Services    int
	Checks      int
	ByStatus    map[finding.Status]int
	BySeverity  map[finding.Severity]int
}

// PassRate is the share of PASS results over all findings, in percent.
func (o Overview) PassRate() float64 {
	if o.Findings == 0 {
		return 0
	}
	return float64(o.ByStatus[finding.StatusPass]) / float64(o.Findings) * 100
}

// Overview computes headline numbers.
func (a *Aggregator) Overview() Overview {
	first, last := finding.Span(a.Findings)
	o := Overview{
		First:       first,
		Last:        last,
		Granularity: a.Granularity,
		Findings:    len(a.Findings),
		ByStatus:    map[finding.Status]int{},
		BySeverity:  map[finding.Severity]int{},
	}

	sources := map[string]bool{}
	accounts := map[string]bool{}
	regions := map[string]bool{}
	resources := map[string]bool{}
	services := map[string]bool{}
	checks := map[string]bool{}
	for _, f := range a.Findings {
		sources[f.Source] = true
		accounts[f.AccountID] = true
		if f.Region != "" {
			regions[f.Region] = true
		}
		if f.ResourceID != "" {
			resources[f.ResourceID] = true
		}
		if f.Service != "" {
			services[f.Service] = true
		}
		checks[f.CheckID] = true
		o.ByStatus[f.Status]++
		o.BySeverity[f.Severity]++
	}
	o.Snapshots = len(sources)
	o.Accounts = len(accounts)
	o.Regions = len(regions)
	o.Resources = len(resources)
	o.Services = len(services)
	o.Checks = len(checks)
	return o
}
