// Package finding defines the scan-export data model shared by every stage of the pipeline.
package finding

import (
	"sort"
	"strings"
	"time"
)

// Severity is the ordinal risk classification of a finding.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityInformational
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Severities lists known severities from most to least severe.
var Severities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
	SeverityInformational,
}

var severityNames = map[Severity]string{
	SeverityUnknown:       "unknown",
	SeverityInformational: "informational",
	SeverityLow:           "low",
	SeverityMedium:        "medium",
	SeverityHigh:          "high",
	SeverityCritical:      "critical",
}

// ParseSeverity is case-insensitive. Unrecognized values map to SeverityUnknown.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	case "low":
		return SeverityLow
	case "informational", "info":
		return SeverityInformational
	}
	return SeverityUnknown
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return "unknown"
}

// Score maps severity onto the 1..5 scale used for prioritisation.
func (s Severity) Score() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInformational:
		return 1
	}
	return 0
}

// MarshalText keeps JSON ledgers human readable.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	*s = ParseSeverity(string(b))
	return nil
}

// Status is the check outcome of a finding.
type Status string

const (
	StatusPass  Status = "PASS"
	StatusFail  Status = "FAIL"
	StatusOther Status = "OTHER"
)

// ParseStatus normalizes PASS/FAIL. MANUAL, INFO and anything else collapse to StatusOther.
func ParseStatus(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PASS":
		return StatusPass
	case "FAIL":
		return StatusFail
	}
	return StatusOther
}

// Finding is one row of a scan export. Values are never mutated after loading.
type Finding struct {
	ID           string
	AccountID    string
	AccountName  string
	CheckID      string
	CheckTitle   string
	Service      string
	Severity     Severity
	Status       Status
	ResourceID   string
	ResourceName string
	ResourceType string
	Region       string
	Remediation  string
	Timestamp    time.Time

	// Source is the file the row came from, ScanTime that file's scan time.
	Source   string
	ScanTime time.Time
}

// Failing reports whether the finding is a FAIL result.
func (f Finding) Failing() bool { return f.Status == StatusFail }

// Key identifies a (resource, check) pair across snapshots.
type Key struct {
	ResourceID string
	CheckID    string
}

func (f Finding) Key() Key {
	return Key{ResourceID: f.ResourceID, CheckID: f.CheckID}
}

// Snapshot is the set of findings produced by one scan run.
type Snapshot struct {
	Source   string
	Time     time.Time
	Findings []Finding
}

// Accounts returns the distinct account IDs present in the snapshot.
func (s Snapshot) Accounts() map[string]bool {
	out := make(map[string]bool)
	for _, f := range s.Findings {
		out[f.AccountID] = true
	}
	return out
}

// GroupSnapshots partitions findings by source file and orders the result by
// (scan time, source) ascending.
func GroupSnapshots(findings []Finding) []Snapshot {
	index := make(map[string]int)
	var snaps []Snapshot
	for _, f := range findings {
		i, ok := index[f.Source]
		if !ok {
			i = len(snaps)
			index[f.Source] = i
			snaps = append(snaps, Snapshot{Source: f.Source, Time: f.ScanTime})
		}
		snaps[i].Findings = append(snaps[i].Findings, f)
	}

	SortSnapshots(snaps)
	return snaps
}

// SortSnapshots orders snapshots by (time, source) ascending in place.
func SortSnapshots(snaps []Snapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		if !snaps[i].Time.Equal(snaps[j].Time) {
			return snaps[i].Time.Before(snaps[j].Time)
		}
		return snaps[i].Source < snaps[j].Source
	})
}

// Span returns the earliest and latest scan times across findings.
func Span(findings []Finding) (time.Time, time.Time) {
	var first, last time.Time
	for i, f := range findings {
		if i == 0 || f.ScanTime.Before(first) {
			first = f.ScanTime
		}
		if i == 0 || f.ScanTime.After(last) {
			last = f.ScanTime
		}
	}
	return first, last
}
