package engine

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/DrSkyle/scantrail/pkg/engine/remediation"
	"github.com/DrSkyle/scantrail/pkg/engine/report"
	"github.com/DrSkyle/scantrail/pkg/engine/trend"
	"github.com/DrSkyle/scantrail/pkg/finding"
	"github.com/DrSkyle/scantrail/pkg/version"
)

// Artifact names.
const (
	FileTrendSummary       = "trend_summary.csv"
	FileTopIssues          = "top_issues.csv"
	FileAccountMetrics     = "account_metrics.csv"
	FileRemediation        = "remediation_tracking.csv"
	FileRemediationPlan    = "remediation_plan.csv"
	FileMTTR               = "mttr_by_severity.csv"
	FileProjectCounts      = "project_counts.csv"
	FileHTMLReport         = "scantrail_report.html"
	FilePDFReport          = "scantrail_report.pdf"
	chartTotalTrend        = "total_findings_trend.png"
	chartStatusTrend       = "status_trend.png"
	chartSeverityTrend     = "severity_trend.png"
	chartTopChecksTrend    = "top_failing_checks_trend.png"
	chartServicePie        = "service_distribution_pie.png"
	chartRemediationTrend  = "remediation_trend.png"
	chartAccountCompliance = "account_compliance_comparison.png"
	chartStatusPie         = "current_status_distribution.png"
	chartMonthlyRate       = "monthly_remediation_rate.png"
	chartTTR               = "time_to_remediate_by_severity.png"
	chartOpenAge           = "open_findings_age_distribution.png"
	chartTopAwaiting       = "top_checks_awaiting_remediation.png"
)

const timeLayout = "2006-01-02 15:04:05"

// views maps aggregator and differ output onto report primitives.
type views struct {
	rep   *Report
	agg   *trend.Aggregator
	cfg   Config
	title cases.Caser
}

func newViews(rep *Report, agg *trend.Aggregator, cfg Config) *views {
	return &views{rep: rep, agg: agg, cfg: cfg, title: cases.Title(language.English)}
}

func (v *views) label(s string) string { return v.title.String(s) }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func itoa(n int) string { return strconv.Itoa(n) }

func ftoa(f float64, prec int) string { return strconv.FormatFloat(f, 'f', prec, 64) }

// --- tables ---

func (v *views) trendSummary() report.Table {
	t := report.Table{
		File:    FileTrendSummary,
		Title:   "Trend summary",
		Columns: []string{"bucket", "account_id", "severity", "status", "count"},
	}
	for _, r := range v.agg.Aggregate() {
		t.Rows = append(t.Rows, []string{r.Bucket, r.AccountID, r.Severity.String(), string(r.Status), itoa(r.Count)})
	}
	return t
}

func (v *views) topIssues() report.Table {
	t := report.Table{
		File:    FileTopIssues,
		Title:   "Top failing checks",
		Columns: []string{"rank", "check_id", "check_title", "service", "failures"},
	}
	for i, is := range v.rep.TopIssues {
		t.Rows = append(t.Rows, []string{itoa(i + 1), is.CheckID, is.CheckTitle, is.Service, itoa(is.Failures)})
	}
	return t
}

func (v *views) accountMetrics() report.Table {
	cols := []string{"account_id", "account_name", "project", "latest_scan", "total", "pass", "fail", "other", "pass_rate"}
	for _, sev := range finding.Severities {
		cols = append(cols, sev.String())
	}
	t := report.Table{File: FileAccountMetrics, Title: "Account compliance", Columns: cols}
	for _, m := range v.agg.AccountMetrics() {
		row := []string{
			m.AccountID, m.AccountName, m.Project, formatTime(m.LatestScan),
			itoa(m.Total), itoa(m.Pass), itoa(m.Fail), itoa(m.Other), ftoa(m.PassRate(), 1),
		}
		for _, sev := range finding.Severities {
			row = append(row, itoa(m.FailBySeverity[sev]))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func (v *views) remediationTracking() report.Table {
	t := report.Table{
		File:  FileRemediation,
		Title: "Remediation tracking",
		Columns: []string{
			"resource_id", "check_id", "episode", "account_id", "account_name", "region", "service",
			"severity", "check_title", "first_failing", "last_failing", "resolved", "state",
			"classification", "days_to_remediate", "age_days", "observations",
		},
	}
	res := v.rep.Remediation
	for _, rec := range res.Records {
		ttr, age := "", ""
		if rec.Open() {
			age = ftoa(remediation.Days(rec.Age(res.Latest)), 1)
		} else {
			ttr = ftoa(remediation.Days(rec.TimeToRemediate()), 1)
		}
		t.Rows = append(t.Rows, []string{
			rec.ResourceID, rec.CheckID, itoa(rec.Episode), rec.AccountID, rec.AccountName, rec.Region, rec.Service,
			rec.Severity.String(), rec.CheckTitle, formatTime(rec.FirstFailing), formatTime(rec.LastFailing),
			formatTime(rec.Resolved), string(rec.State), string(rec.Class), ttr, age, itoa(rec.Observations),
		})
	}
	return t
}

func (v *views) plan() report.Table {
	t := report.Table{
		File:  FileRemediationPlan,
		Title: "Remediation plan",
		Columns: []string{
			"priority", "score", "severity", "age_days", "check_id", "check_title", "resource_id",
			"resource_name", "resource_type", "region", "account_id", "first_failing", "remediation",
		},
	}
	for _, p := range v.rep.Remediation.Plan() {
		t.Rows = append(t.Rows, []string{
			p.Priority, ftoa(p.Score, 1), p.Severity.String(), itoa(p.AgeDays), p.CheckID, p.CheckTitle,
			p.ResourceID, p.ResourceName, p.ResourceType, p.Region, p.AccountID, formatTime(p.FirstFailing),
			p.Remediation,
		})
	}
	return t
}

func (v *views) mttr() report.Table {
	t := report.Table{
		File:    FileMTTR,
		Title:   "Mean time to remediate",
		Columns: []string{"severity", "resolved", "open", "mttr_days"},
	}
	for _, m := range v.rep.Remediation.MTTR() {
		mean := ""
		if m.Resolved > 0 {
			mean = ftoa(m.MeanDays, 2)
		}
		t.Rows = append(t.Rows, []string{m.Severity.String(), itoa(m.Resolved), itoa(m.Open), mean})
	}
	return t
}

// projectCounts compares failing findings per project with the previous ledger run.
// Without an account directory there are no projects and ok is false.
func (v *views) projectCounts() (report.Table, bool) {
	current := v.rep.Summary.FailByProject
	if current == nil {
		return report.Table{}, false
	}
	t := report.Table{
		File:    FileProjectCounts,
		Title:   "Failing findings by project",
		Columns: []string{"project", "failing", "change"},
	}
	deltas := v.rep.Trends.ProjectDelta
	names := make([]string, 0, len(current))
	for p := range current {
		names = append(names, p)
	}
	for p := range deltas {
		if _, ok := current[p]; !ok {
			names = append(names, p)
		}
	}
	sort.Strings(names)
	for _, p := range names {
		change := ""
		if d, ok := deltas[p]; ok {
			change = fmt.Sprintf("%+d", d)
		}
		t.Rows = append(t.Rows, []string{p, itoa(current[p]), change})
	}
	return t, true
}

func (v *views) tables() []report.Table {
	remediationTables := []report.Table{v.remediationTracking(), v.plan(), v.mttr()}
	if v.cfg.Mode == ModeRemediation {
		return remediationTables
	}
	out := []report.Table{v.trendSummary(), v.topIssues(), v.accountMetrics()}
	if t, ok := v.projectCounts(); ok {
		out = append(out, t)
	}
	return append(out, remediationTables...)
}

// --- charts ---

// lines converts a bucket table into chart series. Status and severity names are title-cased.
func (v *views) lines(t trend.Table, titled bool) []report.Series {
	out := make([]report.Series, 0, len(t.Lines))
	for _, l := range t.Lines {
		s := report.Series{Name: l.Name}
		if titled {
			s.Name = v.label(l.Name)
		}
		for i, b := range t.Buckets {
			s.Points = append(s.Points, report.Point{Label: b, Value: l.Values[i]})
		}
		out = append(out, s)
	}
	return out
}

func countSeries(name string, counts []remediation.Count) []report.Series {
	s := report.Series{Name: name}
	for _, c := range counts {
		s.Points = append(s.Points, report.Point{Label: c.Label, Value: float64(c.Value)})
	}
	return []report.Series{s}
}

func (v *views) trendCharts() []report.Chart {
	bucket := v.label(string(v.agg.Granularity))

	service := report.Series{Name: "Findings"}
	for _, sl := range v.agg.ServiceDistribution(v.cfg.Analysis.ServiceSlices) {
		service.Points = append(service.Points, report.Point{Label: sl.Label, Value: float64(sl.Value)})
	}

	compliance := report.Series{Name: "Pass rate"}
	for _, m := range v.agg.AccountMetrics() {
		name := m.AccountID
		if m.AccountName != "" {
			name = fmt.Sprintf("%s (%s)", m.AccountName, m.AccountID)
		}
		compliance.Points = append(compliance.Points, report.Point{Label: name, Value: m.PassRate()})
	}

	return []report.Chart{
		{File: chartTotalTrend, Title: "Total Findings Over Time", XLabel: bucket, YLabel: "Findings",
			Kind: report.KindLine, Series: v.lines(v.agg.TotalTable(), false)},
		{File: chartStatusTrend, Title: "Findings by Status Over Time", XLabel: bucket, YLabel: "Findings",
			Kind: report.KindLine, Series: v.lines(v.agg.StatusTable(), true)},
		{File: chartSeverityTrend, Title: "Findings by Severity Over Time", XLabel: bucket, YLabel: "Findings",
			Kind: report.KindLine, Series: v.lines(v.agg.SeverityTable(), true)},
		{File: chartTopChecksTrend, Title: "Top Failing Checks Over Time", XLabel: bucket, YLabel: "Failing findings",
			Kind: report.KindLine, Series: v.lines(v.agg.TopChecksTable(v.cfg.Analysis.TrendChecks), false)},
		{File: chartServicePie, Title: "Findings by Service (Latest Day)", Kind: report.KindPie,
			Series: []report.Series{service}},
		{File: chartAccountCompliance, Title: "Compliance Pass Rate by Account", XLabel: "Account", YLabel: "Pass rate (%)",
			Kind: report.KindBar, Series: []report.Series{compliance}},
	}
}

func (v *views) remediationCharts() []report.Chart {
	res := v.rep.Remediation

	rate := report.Series{Name: "Remediation rate"}
	for _, m := range res.MonthlyRemediationRate() {
		rate.Points = append(rate.Points, report.Point{Label: m.Month, Value: m.Rate()})
	}

	ttr := report.Series{Name: "Mean days"}
	for _, m := range res.MTTR() {
		if m.Resolved > 0 {
			ttr.Points = append(ttr.Points, report.Point{Label: v.label(m.Severity.String()), Value: m.MeanDays})
		}
	}

	return []report.Chart{
		{File: chartRemediationTrend, Title: "Remediated Findings Over Time", XLabel: v.label(string(v.agg.Granularity)),
			YLabel: "Resolved", Kind: report.KindLine,
			Series: countSeries("Resolved", res.ResolvedPerBucket(v.agg.Granularity.Bucket))},
		{File: chartStatusPie, Title: "Current Remediation Status", Kind: report.KindPie,
			Series: countSeries("Records", res.ClassDistribution())},
		{File: chartMonthlyRate, Title: "Monthly Remediation Rate", XLabel: "Month of detection", YLabel: "Resolved (%)",
			Kind: report.KindBar, Series: []report.Series{rate}},
		{File: chartTTR, Title: "Mean Time to Remediate by Severity", XLabel: "Severity", YLabel: "Days",
			Kind: report.KindBar, Series: []report.Series{ttr}},
		{File: chartOpenAge, Title: "Open Findings by Age", XLabel: "Age", YLabel: "Open records",
			Kind: report.KindBar, Series: countSeries("Open", res.AgeDistribution())},
		{File: chartTopAwaiting, Title: "Top Checks Awaiting Remediation", XLabel: "Check", YLabel: "Open records",
			Kind: report.KindBar, Series: countSeries("Open", res.TopAwaiting(v.cfg.Analysis.TopN))},
	}
}

func (v *views) charts() []report.Chart {
	if v.cfg.Mode == ModeRemediation {
		return v.remediationCharts()
	}
	return append(v.trendCharts(), v.remediationCharts()...)
}

// --- document ---

func head(t report.Table, n int) report.Table {
	if n > 0 && len(t.Rows) > n {
		t.Rows = t.Rows[:n]
		t.Title = fmt.Sprintf("%s (first %d rows)", t.Title, n)
	}
	return t
}

func (v *views) stats() []report.Stat {
	o := v.rep.Overview
	res := v.rep.Remediation

	var total time.Duration
	resolved := res.Resolved()
	for _, rec := range resolved {
		total += rec.TimeToRemediate()
	}
	mttr := "n/a"
	if len(resolved) > 0 {
		mttr = ftoa(remediation.Days(total)/float64(len(resolved)), 1) + " days"
	}

	return []report.Stat{
		{Label: "Period", Value: period(o)},
		{Label: "Granularity", Value: v.label(string(o.Granularity))},
		{Label: "Snapshots", Value: itoa(o.Snapshots)},
		{Label: "Findings", Value: itoa(o.Findings)},
		{Label: "Accounts", Value: itoa(o.Accounts)},
		{Label: "Regions", Value: itoa(o.Regions)},
		{Label: "Services", Value: itoa(o.Services)},
		{Label: "Checks", Value: itoa(o.Checks)},
		{Label: "Pass rate", Value: ftoa(o.PassRate(), 1) + "%"},
		{Label: "Current pass rate", Value: ftoa(v.rep.Summary.PassRate, 1) + "%"},
		{Label: "Open remediations", Value: itoa(len(res.Open()))},
		{Label: "Newly failing", Value: itoa(v.rep.Summary.NewRecords)},
		{Label: "Persistently failing", Value: itoa(v.rep.Summary.PersistentRecords)},
		{Label: "Resolved remediations", Value: itoa(len(resolved))},
		{Label: "Mean time to remediate", Value: mttr},
	}
}

func (v *views) alerts() []string {
	var out []string
	out = append(out, v.rep.Trends.Alerts...)
	if v.rep.Load != nil {
		for _, s := range v.rep.Load.Skipped {
			out = append(out, fmt.Sprintf("Skipped %s: %v", filepath.Base(s.Source), s.Err))
		}
	}
	return out
}

// document lays out sections, linking only the charts that were drawn.
func (v *views) document(drawn map[string]bool, tables map[string]report.Table) report.Document {
	rows := v.cfg.Output.DocumentRows
	pick := func(files ...string) []string {
		var out []string
		for _, f := range files {
			if drawn[f] {
				out = append(out, f)
			}
		}
		return out
	}
	tbl := func(files ...string) []report.Table {
		var out []report.Table
		for _, f := range files {
			if t, ok := tables[f]; ok {
				out = append(out, head(t, rows))
			}
		}
		return out
	}

	doc := report.Document{
		Title:     "Security Findings Trend Analysis",
		Subtitle:  period(v.rep.Overview),
		Generated: time.Now().UTC(),
		Version:   version.Current,
		Stats:     v.stats(),
		Alerts:    v.alerts(),
	}
	if v.cfg.Mode == ModeRemediation {
		doc.Title = "Remediation Tracking Report"
	} else {
		doc.Sections = append(doc.Sections,
			report.Section{
				Title:  "Trends",
				Note:   fmt.Sprintf("Findings grouped by %s of scan time.", v.agg.Granularity),
				Charts: pick(chartTotalTrend, chartStatusTrend, chartSeverityTrend, chartTopChecksTrend, chartServicePie),
				Tables: tbl(FileTopIssues),
			},
			report.Section{
				Title:  "Accounts",
				Note:   "Compliance at each account's latest scan.",
				Charts: pick(chartAccountCompliance),
				Tables: tbl(FileAccountMetrics, FileProjectCounts),
			},
		)
	}
	doc.Sections = append(doc.Sections, report.Section{
		Title: "Remediation",
		Note:  fmt.Sprintf("Records absent from a later scan are handled with the %q policy.", v.cfg.Analysis.Policy),
		Charts: pick(chartRemediationTrend, chartStatusPie, chartMonthlyRate, chartTTR, chartOpenAge,
			chartTopAwaiting),
		Tables: tbl(FileMTTR, FileRemediationPlan),
	})
	return doc
}

// render writes CSVs, charts and the optional documents. Returned names are relative to the output directory.
func (e *Engine) render(rep *Report, agg *trend.Aggregator) ([]string, error) {
	r, err := report.NewRenderer(e.outputDir, e.Logger)
	if err != nil {
		return nil, err
	}
	if w := e.config.Output.ChartWidth; w > 0 {
		r.Width = w
	}
	if h := e.config.Output.ChartHeight; h > 0 {
		r.Height = h
	}

	v := newViews(rep, agg, e.config)
	var written []string

	tables := map[string]report.Table{}
	for _, t := range v.tables() {
		p, err := r.WriteCSV(t)
		if err != nil {
			return written, fmt.Errorf("write %s: %w", t.File, err)
		}
		tables[t.File] = t
		written = append(written, filepath.Base(p))
	}

	charts := v.charts()
	drawn := map[string]bool{}
	if e.config.Output.Charts {
		for _, c := range charts {
			p, err := r.WriteChart(c)
			if err != nil {
				e.Logger.Warn("chart not drawn", "chart", c.File, "error", err)
				continue
			}
			if p == "" {
				continue
			}
			drawn[c.File] = true
			written = append(written, filepath.Base(p))
		}
	}

	if !e.config.Output.HTML && !e.config.Output.PDF {
		return written, nil
	}

	doc := v.document(drawn, tables)
	if e.config.Output.HTML {
		p, err := r.WriteHTML(FileHTMLReport, doc)
		if err != nil {
			return written, err
		}
		written = append(written, filepath.Base(p))
	}
	if e.config.Output.PDF {
		p, err := r.WritePDF(FilePDFReport, doc, charts)
		if err != nil {
			return written, err
		}
		written = append(written, filepath.Base(p))
	}
	return written, nil
}
