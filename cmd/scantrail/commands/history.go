package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/DrSkyle/scantrail/pkg/config"
	"github.com/DrSkyle/scantrail/pkg/engine/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show run-over-run trends from the ledger",
	Long: `Load the last runs recorded in the ledger and print deltas, failing-count
velocity and trend alerts.

Example:
  scantrail history --last 5
  scantrail history --ledger s3://bucket/scantrail/ledger.jsonl`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().String("ledger", "", "Run ledger: file path or s3://bucket/key (default <output>/.scantrail/ledger.jsonl)")
	historyCmd.Flags().StringP("output", "o", config.DefaultOutputDir, "Output directory holding the default ledger")
	historyCmd.Flags().Int("last", config.DefaultIntegrationConfig().HistoryRuns, "Number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	ledger := s.Integrations.Ledger
	if ledger == "" {
		ledger = config.LedgerPath(s.Output.Dir)
	}

	ctx := cmd.Context()
	client, err := history.Open(ctx, ledger)
	if err != nil {
		return err
	}
	runs, err := client.LoadWindow(ctx, s.Integrations.HistoryRuns)
	if err != nil {
		return fmt.Errorf("failed to load ledger %s: %w", ledger, err)
	}
	if len(runs) == 0 {
		fmt.Println(warnLine("No runs recorded in %s", ledger))
		return nil
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("RUN HISTORY (%d runs)", len(runs))))
	fmt.Printf("  %-20s %-23s %8s %8s %8s %8s %8s %8s\n", "RUN", "PERIOD END", "FINDINGS", "FAILING", "DELTA", "PASS %", "OPEN", "NEW")
	failing := make([]float64, 0, len(runs))
	for i, r := range runs {
		delta := ""
		if i > 0 {
			delta = fmt.Sprintf("%+d", r.Failing-runs[i-1].Failing)
		}
		fmt.Printf("  %-20s %-23s %8d %8d %8s %8.1f %8d %8d\n",
			shortID(r.RunID),
			time.Unix(r.PeriodEnd, 0).UTC().Format("2006-01-02 15:04:05"),
			r.Findings, r.Failing, delta, r.PassRate, r.OpenRecords, r.NewRecords)
		failing = append(failing, float64(r.Failing))
	}
	fmt.Println("")

	res := history.Analyze(runs)
	rows := []kv{
		{"Failing trend", sparkline(failing)},
		{"Current failing", fmt.Sprintf("%d", res.CurrentFailing)},
		{"Velocity", fmt.Sprintf("%+.2f / day", res.Velocity)},
		{"Acceleration", fmt.Sprintf("%+.2f / day²", res.Acceleration)},
		{"Severity mix similarity", fmt.Sprintf("%.2f", res.MixSimilarity)},
	}
	for _, d := range res.SortedSeverityDelta() {
		rows = append(rows, kv{"Δ " + d.Severity, fmt.Sprintf("%+d", d.Delta)})
	}
	for _, p := range res.SortedProjectDelta() {
		rows = append(rows, kv{"Δ project " + p.Project, fmt.Sprintf("%+d", p.Delta)})
	}
	fmt.Println(card("TRENDS", rows))

	for _, a := range res.Alerts {
		fmt.Println(warnLine("%s", a))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 18 {
		return id[:18]
	}
	return id
}
