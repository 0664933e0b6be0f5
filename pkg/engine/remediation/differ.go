// Package remediation derives finding lifecycles from an ordered sequence of scan snapshots.
package remediation

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/DrSkyle/scantrail/pkg/finding"
)

// Policy decides what happens to an open record whose finding is absent from a later snapshot.
type Policy string

const (
	// KeepOpen closes records only on an explicit PASS.
	KeepOpen Policy = "keep-open"
	// ResolveMissing also closes records absent from a later snapshot of the same account.
	ResolveMissing Policy = "resolve"
)

// ParsePolicy accepts keep-open and resolve.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", KeepOpen:
		return KeepOpen, nil
	case ResolveMissing:
		return p, nil
	}
	return "", fmt.Errorf("unknown disappearance policy %q (want keep-open or resolve)", s)
}

// State of a record.
type State string

const (
	StateOpen     State = "open"
	StateResolved State = "resolved"
)

// Classification places a record relative to the latest scan of its account.
type Classification string

const (
	// ClassNew is failing for the first time in its account's latest scan.
	ClassNew Classification = "new"
	// ClassPersistent is still open and predates the latest scan.
	ClassPersistent Classification = "persistent"
	// ClassRemediated has been resolved.
	ClassRemediated Classification = "remediated"
)

// Record is the lifecycle of one failing (resource, check) episode.
type Record struct {
	ResourceID string
	CheckID    string
	// Episode counts re-failures of the same pair after it was resolved, starting at 1.
	Episode int

	AccountID    string
	AccountName  string
	Region       string
	Service      string
	CheckTitle   string
	ResourceName string
	ResourceType string
	Remediation  string
	Severity     finding.Severity

	FirstFailing time.Time
	LastFailing  time.Time
	Resolved     time.Time
	State        State
	Class        Classification
	// Observations is the number of snapshots the record was seen failing in.
	Observations int
}

// Open reports whether the record is still unresolved.
func (r Record) Open() bool { return r.State == StateOpen }

// TimeToRemediate is zero for open records.
func (r Record) TimeToRemediate() time.Duration {
	if r.Open() {
		return 0
	}
	return r.Resolved.Sub(r.FirstFailing)
}

// Age is the time a record has been failing as of asOf.
func (r Record) Age(asOf time.Time) time.Duration {
	return asOf.Sub(r.FirstFailing)
}

// Differ replays snapshots into remediation records.
type Differ struct {
	Policy Policy
	Logger *slog.Logger
}

// NewDiffer returns a Differ using policy p.
func NewDiffer(p Policy, logger *slog.Logger) *Differ {
	if logger == nil {
		logger = slog.Default()
	}
	if p == "" {
		p = KeepOpen
	}
	return &Differ{Policy: p, Logger: logger}
}

// observation folds all rows of a pair within one snapshot. Any FAIL wins over PASS.
type observation struct {
	row    finding.Finding
	status finding.Status
}

func fold(s finding.Snapshot) map[finding.Key]observation {
	out := make(map[finding.Key]observation)
	for _, f := range s.Findings {
		if f.ResourceID == "" {
			continue
		}
		k := f.Key()
		prev, ok := out[k]
		switch {
		case !ok:
			out[k] = observation{row: f, status: f.Status}
		case f.Status == finding.StatusFail && prev.status != finding.StatusFail:
			out[k] = observation{row: f, status: f.Status}
		case f.Status == finding.StatusPass && prev.status == finding.StatusOther:
			out[k] = observation{row: f, status: f.Status}
		}
	}
	return out
}

func sortedKeys(m map[finding.Key]observation) []finding.Key {
	keys := make([]finding.Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ResourceID != keys[j].ResourceID {
			return keys[i].ResourceID < keys[j].ResourceID
		}
		return keys[i].CheckID < keys[j].CheckID
	})
	return keys
}

// Diff replays snaps in (time, source) order. The input slice is not modified.
func (d *Differ) Diff(snaps []finding.Snapshot) *Result {
	ordered := append([]finding.Snapshot(nil), snaps...)
	finding.SortSnapshots(ordered)

	var records []*Record
	open := map[finding.Key]*Record{}
	episodes := map[finding.Key]int{}
	accountLatest := map[string]time.Time{}

	for _, snap := range ordered {
		seen := fold(snap)
		for acct := range snap.Accounts() {
			accountLatest[acct] = snap.Time
		}

		for _, k := range sortedKeys(seen) {
			obs := seen[k]
			rec, isOpen := open[k]

			switch obs.status {
			case finding.StatusFail:
				if !isOpen {
					episodes[k]++
					rec = &Record{
						ResourceID:   k.ResourceID,
						CheckID:      k.CheckID,
						Episode:      episodes[k],
						FirstFailing: snap.Time,
						State:        StateOpen,
					}
					records = append(records, rec)
					open[k] = rec
				}
				rec.LastFailing = snap.Time
				rec.Observations++
				rec.describe(obs.row)

			case finding.StatusPass:
				if isOpen {
					rec.close(snap.Time)
					delete(open, k)
					d.Logger.Debug("record resolved", "resource", k.ResourceID, "check", k.CheckID, "at", snap.Time)
				}
			}
		}

		if d.Policy != ResolveMissing {
			continue
		}
		accounts := snap.Accounts()
		for k, rec := range open {
			if _, present := seen[k]; present || !accounts[rec.AccountID] {
				continue
			}
			rec.close(snap.Time)
			delete(open, k)
			d.Logger.Debug("record resolved by absence", "resource", k.ResourceID, "check", k.CheckID, "at", snap.Time)
		}
	}

	res := &Result{Snapshots: len(ordered)}
	if len(ordered) > 0 {
		res.Latest = ordered[len(ordered)-1].Time
	}
	res.Records = make([]Record, len(records))
	for i, r := range records {
		r.classify(accountLatest[r.AccountID])
		res.Records[i] = *r
	}
	sort.SliceStable(res.Records, func(i, j int) bool {
		a, b := res.Records[i], res.Records[j]
		if !a.FirstFailing.Equal(b.FirstFailing) {
			return a.FirstFailing.Before(b.FirstFailing)
		}
		if a.ResourceID != b.ResourceID {
			return a.ResourceID < b.ResourceID
		}
		if a.CheckID != b.CheckID {
			return a.CheckID < b.CheckID
		}
		return a.Episode < b.Episode
	})
	return res
}

// describe refreshes descriptive fields from the most recent failing row.
func (r *Record) describe(f finding.Finding) {
	r.AccountID = f.AccountID
	r.Severity = f.Severity
	r.Region = f.Region
	r.Service = f.Service
	if f.AccountName != "" {
		r.AccountName = f.AccountName
	}
	if f.CheckTitle != "" {
		r.CheckTitle = f.CheckTitle
	}
	if f.ResourceName != "" {
		r.ResourceName = f.ResourceName
	}
	if f.ResourceType != "" {
		r.ResourceType = f.ResourceType
	}
	if f.Remediation != "" {
		r.Remediation = f.Remediation
	}
}

func (r *Record) classify(accountLatest time.Time) {
	switch {
	case !r.Open():
		r.Class = ClassRemediated
	case r.FirstFailing.Equal(accountLatest):
		r.Class = ClassNew
	default:
		r.Class = ClassPersistent
	}
}

func (r *Record) close(at time.Time) {
	r.State = StateResolved
	r.Resolved = at
}
