package report

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(filepath.Join(t.TempDir(), "out"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return r
}

func TestEncodeCSVGolden(t *testing.T) {
	table := Table{
		File:    "trend_summary.csv",
		Columns: []string{"bucket", "account", "severity", "status", "count"},
		Rows: [][]string{
			{"2024-01-01", "111", "high", "FAIL", "2"},
			{"2024-01-02", "=SUM(A1)", "low", "PASS", "-3"},
			{"2024-01-02", `acct, "quoted"`, "critical", "FAIL", "1"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeCSV(&buf, table))

	g := goldie.New(t)
	g.Assert(t, "sanitized_table", buf.Bytes())
}

func TestSanitizeForCSV(t *testing.T) {
	assert.Equal(t, "'=1+1", sanitizeForCSV("=1+1"))
	assert.Equal(t, "'+cmd", sanitizeForCSV("+cmd"))
	assert.Equal(t, "'@SUM", sanitizeForCSV("@SUM"))
	assert.Equal(t, "'-cmd", sanitizeForCSV("-cmd"))
	assert.Equal(t, "-4.5", sanitizeForCSV("-4.5"))
	assert.Equal(t, "plain", sanitizeForCSV("plain"))
	assert.Equal(t, "", sanitizeForCSV(""))
}

func TestWriteCSVEmptyTableKeepsHeader(t *testing.T) {
	r := newTestRenderer(t)
	p, err := r.WriteCSV(Table{File: "top_issues.csv", Columns: []string{"check_id", "failures"}})
	require.NoError(t, err)

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "check_id,failures\n", string(data))
}

func TestWriteChart(t *testing.T) {
	r := newTestRenderer(t)
	pngMagic := []byte("\x89PNG")

	charts := []Chart{
		{File: "line.png", Title: "Status", Kind: KindLine, Series: []Series{
			{Name: "PASS", Points: []Point{{"2024-01-01", 3}, {"2024-01-02", 5}}},
			{Name: "FAIL", Points: []Point{{"2024-01-01", 4}, {"2024-01-02", 1}}},
		}},
		{File: "single.png", Title: "One bucket", Kind: KindLine, Series: []Series{
			{Name: "Total", Points: []Point{{"2024-01-01", 7}}},
		}},
		{File: "single_status.png", Title: "One bucket by status", Kind: KindLine, Series: []Series{
			{Name: "PASS", Points: []Point{{"2024-01-01", 3}}},
			{Name: "FAIL", Points: []Point{{"2024-01-01", 4}}},
		}},
		{File: "single_grouped.png", Title: "One account", Kind: KindBar, Series: []Series{
			{Name: "prod", Points: []Point{{"2024-01-01", 80}}},
			{Name: "dev", Points: []Point{{"2024-01-01", 55}}},
		}},
		{File: "bar.png", Title: "MTTR", Kind: KindBar, Series: []Series{
			{Name: "days", Points: []Point{{"critical", 2.5}, {"high", 0}, {"low", 9}}},
		}},
		{File: "pie.png", Title: "Services", Kind: KindPie, Series: []Series{
			{Name: "findings", Points: []Point{{"s3", 4}, {"iam", 2}, {"ec2", 0}}},
		}},
	}

	for _, c := range charts {
		p, err := r.WriteChart(c)
		require.NoError(t, err, c.File)
		require.NotEmpty(t, p, c.File)
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, pngMagic), c.File)
	}
}

func TestSinglePeriodUsesSeriesNames(t *testing.T) {
	c := singlePeriod(Chart{Kind: KindLine, YLabel: "Findings", Series: []Series{
		{Name: "PASS", Points: []Point{{"2024-01-01", 3}}},
		{Name: "FAIL", Points: []Point{{"2024-01-01", 4}}},
	}})
	assert.Equal(t, KindBar, c.Kind)
	require.Len(t, c.Series, 1)
	assert.Equal(t, []Point{{"PASS", 3}, {"FAIL", 4}}, c.Series[0].Points)

	c = singlePeriod(Chart{Kind: KindLine, Series: []Series{{Name: "Total", Points: []Point{{"2024-01-01", 7}}}}})
	assert.Equal(t, []Point{{"2024-01-01", 7}}, c.Series[0].Points)
}

func TestWriteChartSkipsEmpty(t *testing.T) {
	r := newTestRenderer(t)
	p, err := r.WriteChart(Chart{File: "empty.png", Kind: KindBar, Series: []Series{{Points: []Point{{"a", 0}}}}})
	require.NoError(t, err)
	assert.Empty(t, p)
	_, err = os.Stat(filepath.Join(r.OutputDir, "empty.png"))
	assert.True(t, os.IsNotExist(err))

	p, err = r.WriteChart(Chart{File: "none.png", Kind: KindLine})
	require.NoError(t, err)
	assert.Empty(t, p)
}

func sampleDocument(title string) Document {
	return Document{
		Title:     "Scan Trend Report",
		Subtitle:  "2024-01-01 to 2024-02-01",
		Generated: time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
		Version:   "1.2.3",
		Stats:     []Stat{{"Findings", "42"}, {"Pass rate", "61.9%"}},
		Alerts:    []string{"[WARNING] FAILURE GROWTH: +3 failing findings since previous run"},
		Sections: []Section{{
			Title:  "Top Issues",
			Charts: []string{"top_failing_checks_trend.png"},
			Tables: []Table{{
				File:    "top_issues.csv",
				Title:   "Top failing checks",
				Columns: []string{"check_id", "check_title", "severity", "failures"},
				Rows:    [][]string{{"iam_root_mfa", title, "critical", "5"}},
			}},
		}},
	}
}

func TestWriteHTMLEscapesContent(t *testing.T) {
	r := newTestRenderer(t)
	malicious := `Root MFA<script>alert(1)</script>"; alert('XSS'); "`

	p, err := r.WriteHTML("report.html", sampleDocument(malicious))
	require.NoError(t, err)

	raw, err := os.ReadFile(p)
	require.NoError(t, err)
	content := string(raw)

	assert.NotContains(t, content, "<script>alert(1)</script>")
	assert.Contains(t, content, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.Contains(t, content, `\u003cscript\u003ealert(1)\u003c/script\u003e`, "JSON data block is HTML-safe")
	assert.Contains(t, content, `src="top_failing_checks_trend.png"`)
	assert.Contains(t, content, `alt="Top Failing Checks Trend"`)
	assert.Contains(t, content, "2024-02-01 10:00 UTC")
	assert.Contains(t, content, `class="sev-critical"`)
	assert.Contains(t, content, "scantrail 1.2.3")
}

func TestWritePDF(t *testing.T) {
	r := newTestRenderer(t)
	charts := []Chart{
		{File: "a.png", Title: "Totals", Kind: KindLine, Series: []Series{{Name: "Total", Points: []Point{{"d1", 1}, {"d2", 4}}}}},
		{File: "b.png", Title: "MTTR", Kind: KindBar, Series: []Series{{Name: "days", Points: []Point{{"high", 3}}}}},
		{File: "c.png", Title: "Pie", Kind: KindPie, Series: []Series{{Points: []Point{{"x", 1}}}}},
	}
	p, err := r.WritePDF("report.pdf", sampleDocument(strings.Repeat("long title ", 20)), charts)
	require.NoError(t, err)

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}
