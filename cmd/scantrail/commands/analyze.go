package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/DrSkyle/scantrail/pkg/config"
	"github.com/DrSkyle/scantrail/pkg/engine"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Trend and remediation analysis (default)",
	Long: `Load scan exports, aggregate findings over time and track remediation.

Input is a comma-separated list of files, a directory of *.csv files or an
s3://bucket/prefix URL. Output is a local directory or an s3:// prefix.

Example:
  scantrail analyze -i scans/ -o out/ --report --pdf
  scantrail analyze -i scans/ --filter 'severity in ["critical", "high"]'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalysis(cmd, engine.ModeFull)
	},
}

var remediationCmd = &cobra.Command{
	Use:   "remediation",
	Short: "Remediation tracking only",
	Long: `Replay scan exports in time order and track every failing finding until it
passes again. Writes remediation_tracking.csv, remediation_plan.csv,
mttr_by_severity.csv and the remediation charts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalysis(cmd, engine.ModeRemediation)
	},
}

func init() {
	addAnalysisFlags(analyzeCmd.Flags())
	addAnalysisFlags(remediationCmd.Flags())
}

func addAnalysisFlags(fs *pflag.FlagSet) {
	a := config.DefaultAnalysisConfig()
	fs.StringP("input", "i", "", "Scan exports: files (comma-separated), a directory or s3://bucket/prefix")
	fs.StringP("output", "o", config.DefaultOutputDir, "Output directory or s3://bucket/prefix")
	fs.BoolP("report", "r", false, "Write an HTML report")
	fs.Bool("pdf", false, "Write a PDF report")
	fs.Bool("no-charts", false, "Skip PNG charts")
	fs.String("granularity", a.Granularity, "Time bucket: auto, day, week or month")
	fs.Int("top", a.TopN, "Number of checks in rankings")
	fs.String("policy", a.Policy, "Findings absent from a later scan: keep-open or resolve")
	fs.String("filter", "", "CEL expression selecting findings")
	fs.String("accounts", "", "YAML file mapping account IDs to names and projects")
	fs.String("ledger", "", "Run ledger: file path or s3://bucket/key (default <output>/.scantrail/ledger.jsonl)")
	fs.String("slack-webhook", "", "Slack webhook URL for the run summary")
	fs.String("slack-channel", "", "Slack channel override")
	fs.String("metrics-file", "", "Write Prometheus textfile metrics to this path")
}

func runAnalysis(cmd *cobra.Command, mode engine.Mode) error {
	cfg, err := loadConfig(cmd, mode)
	if err != nil {
		return err
	}
	if cfg.Input == "" {
		if cmd == rootCmd {
			return cmd.Help()
		}
		return errors.New("no input given (use --input or SCANTRAIL_INPUT)")
	}

	ctx := cmd.Context()
	eng, err := engine.New(ctx, engine.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Shutdown(ctx); err != nil {
			cfg.Logger.Debug("telemetry shutdown failed", "error", err)
		}
	}()

	rep, err := eng.Run(ctx)
	switch {
	case errors.Is(err, engine.ErrEmptyResult):
		fmt.Println(warnLine("No findings matched; wrote empty artifacts to %s", eng.OutputDir()))
		return nil
	case err != nil:
		return err
	}

	printReport(rep, cfg)
	return nil
}

func printReport(rep *engine.Report, cfg engine.Config) {
	o := rep.Overview
	s := rep.Summary
	rows := []kv{
		{"Files loaded", fmt.Sprintf("%d", len(rep.Load.Files))},
		{"Snapshots", fmt.Sprintf("%d", o.Snapshots)},
		{"Findings", fmt.Sprintf("%d", o.Findings)},
		{"Accounts", fmt.Sprintf("%d", o.Accounts)},
		{"Granularity", string(o.Granularity)},
		{"Current pass rate", fmt.Sprintf("%.1f%%", s.PassRate)},
		{"Open remediations", fmt.Sprintf("%d", s.OpenRecords)},
		{"  newly failing", fmt.Sprintf("%d", s.NewRecords)},
		{"  persistently failing", fmt.Sprintf("%d", s.PersistentRecords)},
		{"Resolved", fmt.Sprintf("%d", s.ResolvedRecords)},
	}
	fmt.Println(card("SCAN TRAIL", rows))

	for _, sk := range rep.Load.Skipped {
		fmt.Println(warnLine("Skipped %s: %v", sk.Source, sk.Err))
	}
	for _, a := range rep.Trends.Alerts {
		fmt.Println(warnLine("%s", a))
	}

	if cfg.Mode == engine.ModeFull && len(rep.TopIssues) > 0 {
		fmt.Println(titleStyle.Render("TOP FAILING CHECKS"))
		for i, is := range rep.TopIssues {
			fmt.Printf("  %2d. %-45s %s\n", i+1, is.CheckID, dimStyle.Render(fmt.Sprintf("%d failures", is.Failures)))
		}
		fmt.Println("")
	}

	target := cfg.Output.Dir
	fmt.Println(successLine("%d artifacts written to %s", len(rep.Artifacts), target))
	for _, a := range rep.Artifacts {
		fmt.Println(dimStyle.Render("   " + filepath.ToSlash(a)))
	}
}
