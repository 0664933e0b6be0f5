package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/scantrail/pkg/config"
	"github.com/DrSkyle/scantrail/pkg/engine/history"
	"github.com/DrSkyle/scantrail/pkg/engine/notifier"
	"github.com/DrSkyle/scantrail/pkg/loader"
	"github.com/DrSkyle/scantrail/pkg/storage"
)

const scanHeader = "ACCOUNT_UID;ACCOUNT_NAME;TIMESTAMP;FINDING_UID;CHECK_ID;CHECK_TITLE;SEVERITY;STATUS;RESOURCE_UID;REGION\n"

func writeScans(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"scan-2024-01-01.csv": scanHeader +
			"111;prod;2024-01-01 10:00:00;f1;iam_root_mfa;Root MFA enabled;critical;FAIL;arn:root;us-east-1\n" +
			"111;prod;2024-01-01 10:00:00;f2;s3_bucket_public;Bucket not public;high;FAIL;bucket-a;eu-west-1\n" +
			"111;prod;2024-01-01 10:00:00;f3;ec2_sg_open;SG restricts ingress;medium;PASS;sg-1;us-east-1\n",
		"scan-2024-01-08.csv": scanHeader +
			"111;prod;2024-01-08 10:00:00;f1;iam_root_mfa;Root MFA enabled;critical;FAIL;arn:root;us-east-1\n" +
			"111;prod;2024-01-08 10:00:00;f2;s3_bucket_public;Bucket not public;high;PASS;bucket-a;eu-west-1\n" +
			"111;prod;2024-01-08 10:00:00;f3;ec2_sg_open;SG restricts ingress;medium;FAIL;sg-1;us-east-1\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	return dir
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(input, output string) Config {
	cfg := DefaultConfig()
	cfg.Input = input
	cfg.Output.Dir = output
	cfg.SkipTelemetry = true
	cfg.Logger = quietLogger()
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithConfig(cfg)}, opts...)
	eng, err := New(context.Background(), opts...)
	require.NoError(t, err)
	return eng
}

func TestEngineInitialization(t *testing.T) {
	cfg := testConfig("", t.TempDir())

	eng := newTestEngine(t, cfg, WithLogger(cfg.Logger))
	require.NotNil(t, eng)
	assert.NotNil(t, eng.Loader)
	assert.NotNil(t, eng.History)
	assert.Nil(t, eng.Notifier, "no webhook configured")
	assert.Equal(t, cfg.Output.Dir, eng.OutputDir())
	assert.NoError(t, eng.Shutdown(context.Background()))
}

func TestEngineStagesS3Output(t *testing.T) {
	cfg := testConfig("", "s3://bucket/reports")
	cfg.Integrations.Ledger = filepath.Join(t.TempDir(), "ledger.jsonl")

	eng := newTestEngine(t, cfg)
	assert.Equal(t, "s3://bucket/reports", eng.s3Target)
	assert.NotEqual(t, cfg.Output.Dir, eng.OutputDir())
	assert.DirExists(t, eng.OutputDir())
	assert.True(t, strings.HasPrefix(filepath.Base(eng.OutputDir()), config.StagingDir+"-"))
	t.Cleanup(func() { _ = os.RemoveAll(eng.OutputDir()) })

	other := newTestEngine(t, cfg)
	t.Cleanup(func() { _ = os.RemoveAll(other.OutputDir()) })
	assert.NotEqual(t, eng.OutputDir(), other.OutputDir(), "each engine stages separately")
}

func TestRunUploadsAndRemovesStaging(t *testing.T) {
	cfg := testConfig(writeScans(t), "s3://bucket/reports")
	cfg.Integrations.Ledger = filepath.Join(t.TempDir(), "ledger.jsonl")

	eng := newTestEngine(t, cfg)
	target := storage.NewLocalStore(t.TempDir())
	eng.openTarget = func(ctx context.Context, addr string) (storage.BlobStore, string, error) {
		assert.Equal(t, "s3://bucket/reports", addr)
		return target, "reports", nil
	}
	staging := eng.OutputDir()

	_, err := eng.Run(context.Background())
	require.NoError(t, err)

	keys, err := target.List(context.Background(), "reports")
	require.NoError(t, err)
	assert.Contains(t, keys, "reports/"+FileTrendSummary)
	assert.NoDirExists(t, staging)
}

func TestRunKeepsStagingWhenUploadFails(t *testing.T) {
	cfg := testConfig(writeScans(t), "s3://bucket/reports")
	cfg.Integrations.Ledger = filepath.Join(t.TempDir(), "ledger.jsonl")

	eng := newTestEngine(t, cfg)
	eng.openTarget = func(ctx context.Context, addr string) (storage.BlobStore, string, error) {
		return nil, "", assert.AnError
	}
	staging := eng.OutputDir()
	t.Cleanup(func() { _ = os.RemoveAll(staging) })

	_, err := eng.Run(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.FileExists(t, filepath.Join(staging, FileTrendSummary))
}

func TestRunEndToEnd(t *testing.T) {
	input := writeScans(t)
	out := t.TempDir()

	cfg := testConfig(input, out)
	cfg.Output.HTML = true
	cfg.Output.PDF = true
	cfg.Integrations.MetricsFile = filepath.Join(out, "scantrail.prom")

	eng := newTestEngine(t, cfg)
	rep, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, rep.Load.Files, 2)
	assert.Equal(t, 2, rep.Overview.Snapshots)
	require.Len(t, rep.Remediation.Records, 3)
	assert.Len(t, rep.Remediation.Open(), 2)
	assert.Len(t, rep.Remediation.Resolved(), 1)

	assert.Equal(t, 3, rep.Summary.Findings)
	assert.Equal(t, 2, rep.Summary.Failing)
	assert.Equal(t, 1, rep.Summary.FailBySeverity["critical"])

	for _, name := range []string{
		FileTrendSummary, FileTopIssues, FileAccountMetrics, FileRemediation, FileRemediationPlan, FileMTTR,
		chartTotalTrend, chartStatusTrend, chartSeverityTrend, chartTopChecksTrend, chartServicePie,
		chartRemediationTrend, chartAccountCompliance, chartStatusPie, chartMonthlyRate, chartTTR,
		chartOpenAge, chartTopAwaiting, FileHTMLReport, FilePDFReport,
	} {
		assert.Contains(t, rep.Artifacts, name)
		assert.FileExists(t, filepath.Join(out, name))
	}
	assert.FileExists(t, config.LedgerPath(out))
	assert.FileExists(t, cfg.Integrations.MetricsFile)

	summary, err := os.ReadFile(filepath.Join(out, FileTrendSummary))
	require.NoError(t, err)
	goldie.New(t).Assert(t, "trend_summary", summary)

	plan, err := os.ReadFile(filepath.Join(out, FileRemediationPlan))
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(plan), []byte("\n"))
	require.Len(t, lines, 3)
	assert.True(t, bytes.HasPrefix(lines[1], []byte("Critical,50.7,critical,7,iam_root_mfa")), string(lines[1]))

	html, err := os.ReadFile(filepath.Join(out, FileHTMLReport))
	require.NoError(t, err)
	assert.Contains(t, string(html), `src="severity_trend.png"`)
}

func TestRunSingleSnapshot(t *testing.T) {
	input := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(input, "scan-2024-01-01.csv"), []byte(scanHeader+
		"111;prod;2024-01-01 10:00:00;f1;iam_root_mfa;Root MFA enabled;critical;FAIL;arn:root;us-east-1\n"+
		"111;prod;2024-01-01 10:00:00;f3;ec2_sg_open;SG restricts ingress;medium;PASS;sg-1;us-east-1\n"), 0644))
	out := t.TempDir()

	cfg := testConfig(input, out)
	cfg.Output.HTML = true
	cfg.Output.PDF = true

	rep, err := newTestEngine(t, cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Overview.Snapshots)
	assert.Equal(t, 1, rep.Summary.NewRecords)

	for _, name := range []string{
		chartTotalTrend, chartStatusTrend, chartSeverityTrend, chartAccountCompliance,
		FileHTMLReport, FilePDFReport,
	} {
		assert.Contains(t, rep.Artifacts, name)
		assert.FileExists(t, filepath.Join(out, name))
	}
}

func TestRunClassifiesRecordsByProject(t *testing.T) {
	input := writeScans(t)
	out := t.TempDir()
	dir := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(dir, []byte("accounts:\n  - id: \"111\"\n    project: payments\n"), 0644))

	cfg := testConfig(input, out)
	cfg.Output.Charts = false
	cfg.Analysis.Accounts = dir

	rep, err := newTestEngine(t, cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Summary.NewRecords, "sg-1 first fails in the latest scan")
	assert.Equal(t, 1, rep.Summary.PersistentRecords, "arn:root fails in both scans")
	assert.Equal(t, 1, rep.Summary.ResolvedRecords)
	assert.Equal(t, map[string]int{"payments": 2}, rep.Summary.FailByProject)

	tracking, err := os.ReadFile(filepath.Join(out, FileRemediation))
	require.NoError(t, err)
	assert.Contains(t, string(tracking), ",state,classification,")
	assert.Contains(t, string(tracking), ",remediated,")

	projects, err := os.ReadFile(filepath.Join(out, FileProjectCounts))
	require.NoError(t, err)
	assert.Equal(t, "project,failing,change\npayments,2,\n", string(projects))
}

func TestRunIsDeterministic(t *testing.T) {
	input := writeScans(t)
	backend := &history.MemoryBackend{}

	read := func() []byte {
		out := t.TempDir()
		eng := newTestEngine(t, testConfig(input, out), WithHistory(history.NewClient(backend)))
		_, err := eng.Run(context.Background())
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(out, FileTrendSummary))
		require.NoError(t, err)
		return data
	}

	assert.Equal(t, read(), read())

	runs, err := backend.Load(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.NotEqual(t, runs[0].RunID, runs[1].RunID)
}

func TestRunEmptyInput(t *testing.T) {
	out := t.TempDir()
	cfg := testConfig(t.TempDir(), out)
	cfg.Output.HTML = true

	rep, err := newTestEngine(t, cfg).Run(context.Background())
	require.ErrorIs(t, err, ErrEmptyResult)
	require.NotNil(t, rep)
	assert.NotEmpty(t, rep.Load.Warnings)

	data, err := os.ReadFile(filepath.Join(out, FileTrendSummary))
	require.NoError(t, err)
	assert.Equal(t, "bucket,account_id,severity,status,count\n", string(data))
	assert.NoFileExists(t, filepath.Join(out, chartTotalTrend))
	assert.FileExists(t, filepath.Join(out, FileHTMLReport))
	assert.NoFileExists(t, config.LedgerPath(out), "empty runs are not recorded")
}

func TestRunMissingInput(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "nope"), t.TempDir())

	_, err := newTestEngine(t, cfg).Run(context.Background())
	assert.ErrorIs(t, err, loader.ErrInputNotFound)
}

func TestRunRejectsBadConfiguration(t *testing.T) {
	input := writeScans(t)

	for name, mutate := range map[string]func(*Config){
		"filter":      func(c *Config) { c.Analysis.Filter = "severity ==" },
		"granularity": func(c *Config) { c.Analysis.Granularity = "hourly" },
		"policy":      func(c *Config) { c.Analysis.Policy = "forget" },
		"accounts":    func(c *Config) { c.Analysis.Accounts = filepath.Join(input, "missing.yaml") },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(input, t.TempDir())
			mutate(&cfg)
			_, err := newTestEngine(t, cfg).Run(context.Background())
			assert.ErrorContains(t, err, "invalid configuration")
		})
	}
}

func TestRunRemediationMode(t *testing.T) {
	out := t.TempDir()
	cfg := testConfig(writeScans(t), out)
	cfg.Mode = ModeRemediation
	cfg.Analysis.Filter = `severity != "medium"`

	rep, err := newTestEngine(t, cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, rep.Remediation.Records, 2)
	assert.FileExists(t, filepath.Join(out, FileRemediation))
	assert.NoFileExists(t, filepath.Join(out, FileTrendSummary))
	assert.NoFileExists(t, filepath.Join(out, chartSeverityTrend))
	assert.FileExists(t, filepath.Join(out, chartTTR))
}

func TestRunNotifiesSlack(t *testing.T) {
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(writeScans(t), t.TempDir())
	cfg.Output.Charts = false
	eng := newTestEngine(t, cfg, WithNotifier(notifier.NewSlackClient(srv.URL, "")))

	_, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, payload["blocks"])
}

func TestRedactSensitiveData(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{ReplaceAttr: RedactSensitiveData}))

	logger.Info("configured", "webhook", "https://hooks.slack.com/services/T/B/X", "input", "scans/")

	assert.NotContains(t, buf.String(), "hooks.slack.com")
	assert.Contains(t, buf.String(), "[REDACTED]")
	assert.Contains(t, buf.String(), "scans/")
}
