package remediation

import (
	"math"
	"sort"
	"time"

	"github.com/DrSkyle/scantrail/pkg/finding"
)

const day = 24 * time.Hour

// Result holds the records derived from one replay.
type Result struct {
	Records   []Record
	Snapshots int
	// Latest is the time of the most recent snapshot analysed.
	Latest time.Time
}

// Open returns the unresolved records.
func (r *Result) Open() []Record {
	var out []Record
	for _, rec := range r.Records {
		if rec.Open() {
			out = append(out, rec)
		}
	}
	return out
}

// Resolved returns the closed records.
func (r *Result) Resolved() []Record {
	var out []Record
	for _, rec := range r.Records {
		if !rec.Open() {
			out = append(out, rec)
		}
	}
	return out
}

// ClassCounts tallies records per classification.
type ClassCounts struct {
	New        int `json:"new"`
	Persistent int `json:"persistent"`
	Remediated int `json:"remediated"`
}

// Classes counts records by classification.
func (r *Result) Classes() ClassCounts {
	var c ClassCounts
	for _, rec := range r.Records {
		switch rec.Class {
		case ClassNew:
			c.New++
		case ClassPersistent:
			c.Persistent++
		case ClassRemediated:
			c.Remediated++
		}
	}
	return c
}

// Days converts a duration to fractional days.
func Days(d time.Duration) float64 {
	return d.Hours() / 24
}

// SeverityMTTR is the mean time to remediate of one severity.
type SeverityMTTR struct {
	Severity finding.Severity
	Resolved int
	Open     int
	MeanDays float64
}

// MTTR averages (resolved - first failing) over closed records per severity.
// Severities without any record are omitted; order is most severe first.
func (r *Result) MTTR() []SeverityMTTR {
	type acc struct {
		resolved, open int
		total          time.Duration
	}
	by := map[finding.Severity]*acc{}
	for _, rec := range r.Records {
		a, ok := by[rec.Severity]
		if !ok {
			a = &acc{}
			by[rec.Severity] = a
		}
		if rec.Open() {
			a.open++
			continue
		}
		a.resolved++
		a.total += rec.TimeToRemediate()
	}

	order := append(append([]finding.Severity{}, finding.Severities...), finding.SeverityUnknown)
	var out []SeverityMTTR
	for _, sev := range order {
		a, ok := by[sev]
		if !ok {
			continue
		}
		m := SeverityMTTR{Severity: sev, Resolved: a.resolved, Open: a.open}
		if a.resolved > 0 {
			m.MeanDays = Days(a.total) / float64(a.resolved)
		}
		out = append(out, m)
	}
	return out
}

// Count is a labeled count.
type Count struct {
	Label string
	Value int
}

// ClassDistribution counts records per classification, skipping empty classes.
func (r *Result) ClassDistribution() []Count {
	c := r.Classes()
	var out []Count
	for _, cc := range []Count{
		{Label: "New", Value: c.New},
		{Label: "Persistent", Value: c.Persistent},
		{Label: "Remediated", Value: c.Remediated},
	} {
		if cc.Value > 0 {
			out = append(out, cc)
		}
	}
	return out
}

// ResolvedPerBucket counts resolutions per bucket label, ascending by label.
func (r *Result) ResolvedPerBucket(bucket func(time.Time) string) []Count {
	counts := map[string]int{}
	for _, rec := range r.Records {
		if !rec.Open() {
			counts[bucket(rec.Resolved)]++
		}
	}
	out := make([]Count, 0, len(counts))
	for k, v := range counts {
		out = append(out, Count{Label: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// MonthlyRate is the remediation rate of records first detected in one month.
type MonthlyRate struct {
	Month    string
	Detected int
	Resolved int
}

// Rate is the resolved share in percent.
func (m MonthlyRate) Rate() float64 {
	if m.Detected == 0 {
		return 0
	}
	return float64(m.Resolved) / float64(m.Detected) * 100
}

// MonthlyRemediationRate groups records by month of first failure.
func (r *Result) MonthlyRemediationRate() []MonthlyRate {
	index := map[string]*MonthlyRate{}
	for _, rec := range r.Records {
		month := rec.FirstFailing.UTC().Format("2006-01")
		m, ok := index[month]
		if !ok {
			m = &MonthlyRate{Month: month}
			index[month] = m
		}
		m.Detected++
		if !rec.Open() {
			m.Resolved++
		}
	}
	out := make([]MonthlyRate, 0, len(index))
	for _, m := range index {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// AgeBins are the open-record age classes, upper bounds exclusive.
var AgeBins = []struct {
	Label string
	Upper time.Duration
}{
	{"<1 week", 7 * day},
	{"1-4 weeks", 30 * day},
	{"1-3 months", 90 * day},
	{"3-6 months", 180 * day},
	{"6-12 months", 365 * day},
	{">1 year", time.Duration(math.MaxInt64)},
}

// AgeDistribution bins open records by age as of Latest. Every bin is returned.
func (r *Result) AgeDistribution() []Count {
	out := make([]Count, len(AgeBins))
	for i, b := range AgeBins {
		out[i].Label = b.Label
	}
	for _, rec := range r.Open() {
		age := rec.Age(r.Latest)
		for i, b := range AgeBins {
			if age < b.Upper {
				out[i].Value++
				break
			}
		}
	}
	return out
}

// TopAwaiting ranks checks by open records, ties by check ID.
func (r *Result) TopAwaiting(n int) []Count {
	counts := map[string]int{}
	for _, rec := range r.Open() {
		counts[rec.CheckID]++
	}
	out := make([]Count, 0, len(counts))
	for k, v := range counts {
		out = append(out, Count{Label: k, Value: v})
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
