package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/DrSkyle/scantrail/pkg/accounts"
	"github.com/DrSkyle/scantrail/pkg/config"
	"github.com/DrSkyle/scantrail/pkg/engine/history"
	"github.com/DrSkyle/scantrail/pkg/engine/metrics"
	"github.com/DrSkyle/scantrail/pkg/engine/notifier"
	"github.com/DrSkyle/scantrail/pkg/engine/policy"
	"github.com/DrSkyle/scantrail/pkg/engine/remediation"
	"github.com/DrSkyle/scantrail/pkg/engine/trend"
	"github.com/DrSkyle/scantrail/pkg/finding"
	"github.com/DrSkyle/scantrail/pkg/loader"
	"github.com/DrSkyle/scantrail/pkg/storage"
)

// Report is the outcome of one run.
type Report struct {
	Load        *loader.Result
	Findings    []finding.Finding
	Overview    trend.Overview
	TopIssues   []trend.Issue
	Remediation *remediation.Result
	Summary     history.RunSummary
	Trends      history.AnalysisResult
	// Artifacts lists written files relative to the output directory.
	Artifacts []string
	OutputDir string
}

// settings validates the run configuration and fills zero values with defaults.
type settings struct {
	granularity trend.Granularity
	policy      remediation.Policy
	filter      *policy.Filter
	directory   *accounts.Directory
}

func (e *Engine) prepare() (settings, error) {
	var s settings
	var err error

	a := &e.config.Analysis
	def := config.DefaultAnalysisConfig()
	if a.TopN <= 0 {
		a.TopN = def.TopN
	}
	if a.TrendChecks <= 0 {
		a.TrendChecks = def.TrendChecks
	}
	if a.ServiceSlices <= 0 {
		a.ServiceSlices = def.ServiceSlices
	}
	if e.config.Output.DocumentRows <= 0 {
		e.config.Output.DocumentRows = config.DefaultOutputConfig().DocumentRows
	}
	if e.config.Integrations.HistoryRuns <= 0 {
		e.config.Integrations.HistoryRuns = config.DefaultIntegrationConfig().HistoryRuns
	}

	if s.granularity, err = trend.ParseGranularity(a.Granularity); err != nil {
		return s, err
	}
	if s.policy, err = remediation.ParsePolicy(a.Policy); err != nil {
		return s, err
	}
	if s.filter, err = policy.NewFilter(a.Filter); err != nil {
		return s, err
	}
	if a.Accounts != "" {
		if s.directory, err = accounts.Load(a.Accounts); err != nil {
			return s, err
		}
	}
	return s, nil
}

// Run executes load, aggregate, diff and render. A nil report is returned only on fatal errors.
// An empty input yields a valid report together with ErrEmptyResult.
func (e *Engine) Run(ctx context.Context) (rep *Report, err error) {
	ctx, span := e.Tracer.Start(ctx, "Engine.Run")
	defer span.End()

	// Crash safety.
	defer e.recoverPanic(ctx, &err)

	s, err := e.prepare()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e.Logger.Info("Starting scantrail analysis", "input", e.config.Input, "output", e.outputDir)

	// Load.
	_, loadSpan := e.Tracer.Start(ctx, "Load")
	res, err := e.Loader.Load(ctx, e.config.Input)
	loadSpan.End()
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("load.files", len(res.Files)),
		attribute.Int("load.skipped", len(res.Skipped)),
	)

	findings := s.directory.Enrich(res.Findings)
	if findings, err = s.filter.Apply(findings); err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	if s.filter != nil {
		e.Logger.Info("filter applied", "expression", s.filter.Expr, "kept", len(findings), "loaded", len(res.Findings))
	}

	rep = &Report{Load: res, Findings: findings, OutputDir: e.outputDir}

	// Aggregate.
	_, aggSpan := e.Tracer.Start(ctx, "Aggregate")
	agg := trend.New(findings, s.granularity)
	if s.directory != nil {
		agg.ProjectOf = s.directory.Project
	}
	rep.Overview = agg.Overview()
	rep.TopIssues = agg.TopIssues(e.config.Analysis.TopN)
	aggSpan.End()

	// Diff.
	_, diffSpan := e.Tracer.Start(ctx, "Diff")
	snaps := finding.GroupSnapshots(findings)
	rep.Remediation = remediation.NewDiffer(s.policy, e.Logger).Diff(snaps)
	diffSpan.SetAttributes(attribute.Int("remediation.records", len(rep.Remediation.Records)))
	diffSpan.End()

	empty := len(findings) == 0
	current := agg.Current()
	rep.Summary = e.summarize(rep, current, s.directory)

	if !empty {
		rep.Trends = e.recordRun(ctx, rep.Summary)
	}

	// Render.
	_, renderSpan := e.Tracer.Start(ctx, "Render")
	rep.Artifacts, err = e.render(rep, agg)
	renderSpan.End()
	if err != nil {
		return rep, err
	}

	if !empty {
		e.notify(ctx, rep)
	}
	if err := e.writeMetrics(rep, current, len(snaps)); err != nil {
		e.Logger.Warn("metrics textfile not written", "error", err)
	}

	if err := e.upload(ctx); err != nil {
		return rep, err
	}

	if empty {
		span.SetAttributes(attribute.Bool("analysis.empty", true))
		e.Logger.Warn("no findings to analyse; wrote empty artifacts", "output", e.outputDir)
		return rep, ErrEmptyResult
	}

	e.Logger.Info("analysis complete",
		"findings", len(findings),
		"snapshots", len(snaps),
		"open_records", rep.Summary.OpenRecords,
		"artifacts", len(rep.Artifacts))
	return rep, nil
}

// summarize builds the ledger entry from each account's latest scan.
func (e *Engine) summarize(rep *Report, current []finding.Finding, dir *accounts.Directory) history.RunSummary {
	s := history.RunSummary{
		Timestamp:      time.Now().Unix(),
		Input:          e.config.Input,
		Snapshots:      rep.Overview.Snapshots,
		FailBySeverity: map[string]int{},
	}
	if !rep.Overview.First.IsZero() {
		s.PeriodStart = rep.Overview.First.Unix()
		s.PeriodEnd = rep.Overview.Last.Unix()
	}
	for _, f := range current {
		s.Findings++
		switch f.Status {
		case finding.StatusFail:
			s.Failing++
			s.FailBySeverity[f.Severity.String()]++
		case finding.StatusPass:
			s.Passing++
		}
	}
	if s.Findings > 0 {
		s.PassRate = float64(s.Passing) / float64(s.Findings) * 100
	}
	s.OpenRecords = len(rep.Remediation.Open())
	s.ResolvedRecords = len(rep.Remediation.Resolved())
	classes := rep.Remediation.Classes()
	s.NewRecords = classes.New
	s.PersistentRecords = classes.Persistent
	s.FailByProject = dir.FailingByProject(current)
	return s
}

// recordRun appends to the ledger and derives run-over-run signals. Ledger failures are warnings.
func (e *Engine) recordRun(ctx context.Context, s history.RunSummary) history.AnalysisResult {
	if e.History == nil {
		return history.AnalysisResult{}
	}
	if err := e.History.Append(ctx, s); err != nil {
		e.Logger.Warn("ledger append failed", "error", err)
		return history.AnalysisResult{}
	}
	runs, err := e.History.LoadWindow(ctx, e.config.Integrations.HistoryRuns)
	if err != nil {
		e.Logger.Warn("ledger load failed", "error", err)
		return history.AnalysisResult{}
	}
	res := history.Analyze(runs)
	for _, a := range res.Alerts {
		e.Logger.Warn("trend alert", "alert", a)
	}
	return res
}

func (e *Engine) notify(ctx context.Context, rep *Report) {
	if e.Notifier == nil {
		return
	}
	critical := 0
	for _, rec := range rep.Remediation.Open() {
		if rec.Severity == finding.SeverityCritical {
			critical++
		}
	}
	var top []string
	for i, is := range rep.TopIssues {
		if i == 5 {
			break
		}
		top = append(top, fmt.Sprintf("%s (%d)", is.CheckID, is.Failures))
	}

	err := e.Notifier.SendAnalysisReport(ctx, notifier.Summary{
		Period:          period(rep.Overview),
		Findings:        rep.Summary.Findings,
		Failing:         rep.Summary.Failing,
		PassRate:        rep.Summary.PassRate,
		OpenRecords:     rep.Summary.OpenRecords,
		NewRecords:      rep.Summary.NewRecords,
		Persistent:      rep.Summary.PersistentRecords,
		ResolvedRecords: rep.Summary.ResolvedRecords,
		CriticalOpen:    critical,
		TopIssues:       top,
		Alerts:          rep.Trends.Alerts,
	})
	if err != nil {
		e.Logger.Warn("slack notification failed", "error", err)
	}
}

func (e *Engine) writeMetrics(rep *Report, current []finding.Finding, snapshots int) error {
	path := e.config.Integrations.MetricsFile
	if path == "" {
		return nil
	}
	m := metrics.New()
	m.Observe(finding.Snapshot{Source: "current", Time: rep.Overview.Last, Findings: current}, rep.Remediation, snapshots)
	if err := m.WriteFile(path); err != nil {
		return err
	}
	e.Logger.Info("metrics textfile written", "file", path)
	return nil
}

// upload copies the staged output to the s3 target.
func (e *Engine) upload(ctx context.Context) error {
	if e.s3Target == "" {
		return nil
	}
	store, prefix, err := e.openTarget(ctx, e.s3Target)
	if err != nil {
		return err
	}
	e.Logger.Info("Uploading artifacts to S3", "target", e.s3Target)
	n, err := storage.UploadDir(ctx, store, e.outputDir, prefix)
	if err != nil {
		return fmt.Errorf("upload artifacts from %s: %w", e.outputDir, err)
	}
	e.Logger.Info("artifacts uploaded", "count", n)

	if err := os.RemoveAll(e.outputDir); err != nil {
		e.Logger.Warn("staging directory not removed", "dir", e.outputDir, "error", err)
	}
	return nil
}

func period(o trend.Overview) string {
	if o.First.IsZero() {
		return "no data"
	}
	return fmt.Sprintf("%s to %s", o.First.UTC().Format("2006-01-02"), o.Last.UTC().Format("2006-01-02"))
}
