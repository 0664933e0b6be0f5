package history

import (
	"fmt"
	"sort"
)

// AnalysisResult contains run-over-run signals.
type AnalysisResult struct {
	CurrentFailing int
	Velocity       float64 // change in failing findings per day
	Acceleration   float64 // change in velocity per day

	// SeverityDelta is the change in failing findings per severity since the previous run.
	SeverityDelta map[string]int
	// ProjectDelta is the change in failing findings per project since the previous run.
	ProjectDelta map[string]int
	// MixSimilarity compares the severity mix of the last two runs (1 = identical).
	MixSimilarity float64

	Alerts []string
}

// Analyze derives trends from runs ordered oldest first.
// Velocity is measured against scan periods, not run times, so re-running an
// analysis over the same exports yields zero velocity.
func Analyze(history []RunSummary) AnalysisResult {
	if len(history) == 0 {
		return AnalysisResult{}
	}

	current := history[len(history)-1]
	res := AnalysisResult{CurrentFailing: current.Failing, MixSimilarity: 1}
	if len(history) < 2 {
		return res
	}
	prev := history[len(history)-2]

	res.SeverityDelta = delta(current.FailBySeverity, prev.FailBySeverity)
	res.MixSimilarity = CosineSimilarity(SeverityVector(current), SeverityVector(prev))
	if current.FailByProject != nil || prev.FailByProject != nil {
		res.ProjectDelta = delta(current.FailByProject, prev.FailByProject)
	}

	// Calculate velocity.
	dayDelta := float64(current.PeriodEnd-prev.PeriodEnd) / 86400.0
	failDelta := current.Failing - prev.Failing
	if dayDelta > 0 {
		res.Velocity = float64(failDelta) / dayDelta
	}

	// Calculate acceleration.
	if len(history) >= 3 && dayDelta > 0 {
		prev2 := history[len(history)-3]
		dayDelta2 := float64(prev.PeriodEnd-prev2.PeriodEnd) / 86400.0
		if dayDelta2 > 0 {
			prevVelocity := float64(prev.Failing-prev2.Failing) / dayDelta2
			res.Acceleration = (res.Velocity - prevVelocity) / dayDelta
		}
	}

	// Generate alerts based on thresholds.
	var alerts []string

	if failDelta > 0 {
		alerts = append(alerts, fmt.Sprintf("[WARNING] FAILURE GROWTH: +%d failing findings since previous run", failDelta))
	}

	if d := res.SeverityDelta["critical"]; d > 0 {
		alerts = append(alerts, fmt.Sprintf("[CRITICAL] NEW CRITICAL FAILURES: +%d", d))
	}

	for _, p := range res.SortedProjectDelta() {
		if p.Delta > 0 {
			alerts = append(alerts, fmt.Sprintf("[WARNING] PROJECT REGRESSION: %s +%d failing findings", p.Project, p.Delta))
		}
	}

	if res.Velocity > 0 && res.Acceleration > 0 {
		alerts = append(alerts, fmt.Sprintf("[WARNING] FAILURE ACCELERATION: failing findings growing faster (+%.2f/day²)", res.Acceleration))
	}

	if current.Failing > 0 && prev.Failing > 0 && res.MixSimilarity < 0.8 {
		alerts = append(alerts, fmt.Sprintf("[WARNING] SEVERITY MIX SHIFT: similarity to previous run %.2f", res.MixSimilarity))
	}

	res.Alerts = alerts
	return res
}

// SortedSeverityDelta lists deltas most severe first.
func (r AnalysisResult) SortedSeverityDelta() []SeverityChange {
	var out []SeverityChange
	for sev, d := range r.SeverityDelta {
		out = append(out, SeverityChange{Severity: sev, Delta: d})
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := severityRank[out[i].Severity], severityRank[out[j].Severity]
		if ri != rj {
			return ri < rj
		}
		return out[i].Severity < out[j].Severity
	})
	return out
}

func delta(current, prev map[string]int) map[string]int {
	out := map[string]int{}
	for k, n := range current {
		out[k] = n - prev[k]
	}
	for k, n := range prev {
		if _, ok := current[k]; !ok {
			out[k] = -n
		}
	}
	return out
}

// SortedProjectDelta lists project deltas, largest increase first, ties by name.
func (r AnalysisResult) SortedProjectDelta() []ProjectChange {
	out := make([]ProjectChange, 0, len(r.ProjectDelta))
	for p, d := range r.ProjectDelta {
		out = append(out, ProjectChange{Project: p, Delta: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Delta != out[j].Delta {
			return out[i].Delta > out[j].Delta
		}
		return out[i].Project < out[j].Project
	})
	return out
}

// ProjectChange is one row of SortedProjectDelta.
type ProjectChange struct {
	Project string
	Delta   int
}

// SeverityChange is one row of SortedSeverityDelta.
type SeverityChange struct {
	Severity string
	Delta    int
}
