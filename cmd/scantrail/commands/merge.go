package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/DrSkyle/scantrail/pkg/accounts"
	"github.com/DrSkyle/scantrail/pkg/engine/policy"
	"github.com/DrSkyle/scantrail/pkg/loader"
)

// MergeSummaryFile is written next to the merged CSV.
const MergeSummaryFile = "merge_summary.json"

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Combine scan exports into one CSV",
	Long: `Load scan exports and write them as a single semicolon-delimited CSV with
SOURCE_FILE and SCAN_TIME columns, plus merge_summary.json with totals by
severity and status.

Example:
  scantrail merge -i exports/ -o combined/all_findings.csv`,
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().StringP("input", "i", "", "Scan exports: files (comma-separated), a directory or s3://bucket/prefix")
	mergeCmd.Flags().StringP("output", "o", "merged_findings.csv", "Merged CSV path")
	mergeCmd.Flags().String("filter", "", "CEL expression selecting findings")
	mergeCmd.Flags().String("accounts", "", "YAML file mapping account IDs to names and projects")
}

func runMerge(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if settings.Input == "" {
		return errors.New("no input given (use --input or SCANTRAIL_INPUT)")
	}
	// --output is a file here, not the analysis directory.
	out, _ := cmd.Flags().GetString("output")

	filter, err := policy.NewFilter(settings.Analysis.Filter)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	var dir *accounts.Directory
	if settings.Analysis.Accounts != "" {
		if dir, err = accounts.Load(settings.Analysis.Accounts); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	res, err := loader.New(newLogger()).Load(cmd.Context(), settings.Input)
	if err != nil {
		return err
	}
	res.Findings = dir.Enrich(res.Findings)
	if res.Findings, err = filter.Apply(res.Findings); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := loader.Merge(f, res.Findings); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	summary := loader.Summarize(res)
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	summaryPath := filepath.Join(filepath.Dir(out), MergeSummaryFile)
	if err := os.WriteFile(summaryPath, data, 0644); err != nil {
		return err
	}

	for _, sk := range res.Skipped {
		fmt.Println(warnLine("Skipped %s: %v", sk.Source, sk.Err))
	}
	if res.Empty() {
		fmt.Println(warnLine("No findings loaded; wrote header-only %s", out))
	}
	fmt.Println(successLine("Merged %d findings from %d files into %s", summary.Total, summary.Files, out))
	fmt.Println(dimStyle.Render("   summary: " + summaryPath))
	return nil
}
