package remediation

import (
	"math"
	"sort"
	"time"

	"github.com/DrSkyle/scantrail/pkg/finding"
)

// Priority classes of the remediation plan.
const (
	PriorityCritical = "Critical"
	PriorityHigh     = "High"
	PriorityMedium   = "Medium"
	PriorityLow      = "Low"
)

// PlanItem is one open record ranked for remediation.
type PlanItem struct {
	Priority     string
	Score        float64
	Severity     finding.Severity
	AgeDays      int
	CheckID      string
	CheckTitle   string
	ResourceID   string
	ResourceName string
	ResourceType string
	Region       string
	AccountID    string
	FirstFailing time.Time
	Remediation  string
}

// PriorityScore weighs severity ten times heavier than age, with age capped at 100 days.
func PriorityScore(sev finding.Severity, ageDays int) float64 {
	return float64(sev.Score()*10) + math.Min(float64(ageDays), 100)/10
}

// PriorityClass maps a score onto a class.
func PriorityClass(score float64) string {
	switch {
	case score >= 45:
		return PriorityCritical
	case score >= 35:
		return PriorityHigh
	case score >= 25:
		return PriorityMedium
	}
	return PriorityLow
}

// Plan ranks open records by score, then age, then check and resource.
func (r *Result) Plan() []PlanItem {
	open := r.Open()
	out := make([]PlanItem, 0, len(open))
	for _, rec := range open {
		age := int(Days(rec.Age(r.Latest)))
		score := PriorityScore(rec.Severity, age)
		out = append(out, PlanItem{
			Priority:     PriorityClass(score),
			Score:        score,
			Severity:     rec.Severity,
			AgeDays:      age,
			CheckID:      rec.CheckID,
			CheckTitle:   rec.CheckTitle,
			ResourceID:   rec.ResourceID,
			ResourceName: rec.ResourceName,
			ResourceType: rec.ResourceType,
			Region:       rec.Region,
			AccountID:    rec.AccountID,
			FirstFailing: rec.FirstFailing,
			Remediation:  rec.Remediation,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.AgeDays != b.AgeDays {
			return a.AgeDays > b.AgeDays
		}
		if a.CheckID != b.CheckID {
			return a.CheckID < b.CheckID
		}
		return a.ResourceID < b.ResourceID
	})
	return out
}
