package commands

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/scantrail/pkg/config"
	"github.com/DrSkyle/scantrail/pkg/loader"
)

const header = "ACCOUNT_UID;TIMESTAMP;CHECK_ID;SEVERITY;STATUS;RESOURCE_UID;REGION\n"

func scans(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"),
		[]byte(header+"111;2024-01-01 00:00:00;iam_root_mfa;critical;FAIL;root;us-east-1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.csv"),
		[]byte(header+"111;2024-01-02 00:00:00;iam_root_mfa;critical;PASS;root;us-east-1\n"), 0644))
	return dir
}

// resetFlags undoes values parsed by earlier executions of the shared command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)
	return ExecuteContext(context.Background())
}

func TestMergeCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "combined", "all.csv")
	require.NoError(t, run(t, "merge", "-i", scans(t), "-o", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(loader.MergedColumns, ";"), lines[0])

	raw, err := os.ReadFile(filepath.Join(filepath.Dir(out), MergeSummaryFile))
	require.NoError(t, err)
	var summary loader.Summary
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.BySeverityStatus["critical"]["FAIL"])
}

func TestAnalyzeAndHistory(t *testing.T) {
	input := scans(t)
	out := t.TempDir()

	require.NoError(t, run(t, "analyze", "-i", input, "-o", out, "--no-charts", "--granularity", "day"))
	assert.FileExists(t, filepath.Join(out, "trend_summary.csv"))
	assert.FileExists(t, filepath.Join(out, "mttr_by_severity.csv"))
	assert.NoFileExists(t, filepath.Join(out, "status_trend.png"))
	assert.FileExists(t, config.LedgerPath(out))

	require.NoError(t, run(t, "history", "-o", out, "--last", "3"))
}

func TestRemediationReadsInputFromEnv(t *testing.T) {
	out := t.TempDir()
	t.Setenv("SCANTRAIL_INPUT", scans(t))

	require.NoError(t, run(t, "remediation", "-o", out, "--no-charts"))
	assert.FileExists(t, filepath.Join(out, "remediation_plan.csv"))
	assert.NoFileExists(t, filepath.Join(out, "trend_summary.csv"))
}

func TestAnalyzeUnreadableInput(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	input := scans(t)
	require.NoError(t, os.Chmod(input, 0))
	t.Cleanup(func() { _ = os.Chmod(input, 0755) })

	err := run(t, "analyze", "-i", input, "-o", t.TempDir(), "--no-charts")
	assert.ErrorIs(t, err, loader.ErrInputUnreadable)
}

func TestCommandErrors(t *testing.T) {
	err := run(t, "analyze", "-i", filepath.Join(t.TempDir(), "missing"), "-o", t.TempDir())
	assert.ErrorIs(t, err, loader.ErrInputNotFound)

	err = run(t, "analyze", "-i", scans(t), "-o", t.TempDir(), "--policy", "sometimes")
	assert.ErrorContains(t, err, "invalid configuration")

	err = run(t, "history", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestConfigFileIsRead(t *testing.T) {
	out := t.TempDir()
	cfg := filepath.Join(t.TempDir(), "scantrail.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("input: "+scans(t)+"\noutput:\n  dir: "+out+"\n  charts: false\n"), 0644))

	require.NoError(t, run(t, "remediation", "--config", cfg))

	assert.FileExists(t, filepath.Join(out, "remediation_tracking.csv"))
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "[NO DATA]", sparkline(nil))
	assert.Equal(t, "▁█", sparkline([]float64{1, 9}))
	assert.Equal(t, "▅▅", sparkline([]float64{3, 3}))
}
