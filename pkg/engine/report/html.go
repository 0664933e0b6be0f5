package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"

	"github.com/Masterminds/sprig/v3"
)

// htmlData is the template context.
type htmlData struct {
	Document
	// DataJSON carries the tables for client-side use. json.Marshal escapes <, > and &.
	DataJSON template.JS
}

// WriteHTML renders doc to <OutputDir>/<name>.
func (r *Renderer) WriteHTML(name string, doc Document) (string, error) {
	tmpl, err := template.New("report").Funcs(funcMap()).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("parse report template: %w", err)
	}

	tables := map[string]Table{}
	for _, s := range doc.Sections {
		for _, t := range s.Tables {
			tables[t.Title] = t
		}
	}
	raw, err := json.Marshal(tables)
	if err != nil {
		return "", err
	}

	p := r.path(name)
	f, err := os.Create(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := tmpl.Execute(f, htmlData{Document: doc, DataJSON: template.JS(raw)}); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	r.Logger.Info("html report written", "file", p)
	return p, nil
}

func funcMap() template.FuncMap {
	fm := sprig.FuncMap()
	fm["severityClass"] = func(s string) string {
		switch s {
		case "critical", "Critical":
			return "sev-critical"
		case "high", "High":
			return "sev-high"
		case "medium", "Medium":
			return "sev-medium"
		case "low", "Low":
			return "sev-low"
		}
		return ""
	}
	return fm
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{ .Title }}</title>
    <style>
        :root {
            --bg: #f8f9fa;
            --surface: #ffffff;
            --border: #dcdcdc;
            --primary: #1e3a5f;
            --danger: #e74c3c;
            --warning: #f1c40f;
            --ok: #2ecc71;
            --text: #2c3e50;
            --text-dim: #7f8c8d;
        }
        * { box-sizing: border-box; }
        body { background: var(--bg); color: var(--text); font-family: -apple-system, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; margin: 0; padding: 32px; font-size: 14px; }
        header { border-bottom: 3px solid var(--primary); margin-bottom: 24px; padding-bottom: 12px; }
        header h1 { margin: 0; color: var(--primary); }
        header p { margin: 4px 0 0; color: var(--text-dim); }
        .stats { display: grid; grid-template-columns: repeat(auto-fill, minmax(180px, 1fr)); gap: 12px; margin-bottom: 24px; }
        .stat { background: var(--surface); border: 1px solid var(--border); border-radius: 6px; padding: 12px; }
        .stat .label { color: var(--text-dim); font-size: 12px; text-transform: uppercase; }
        .stat .value { font-size: 22px; font-weight: 600; }
        .alerts { background: #fdecea; border-left: 4px solid var(--danger); padding: 12px 16px; margin-bottom: 24px; }
        section { background: var(--surface); border: 1px solid var(--border); border-radius: 6px; padding: 16px 20px; margin-bottom: 24px; }
        section h2 { margin-top: 0; color: var(--primary); }
        .charts img { max-width: 100%; border: 1px solid var(--border); margin: 8px 0; }
        table { width: 100%; border-collapse: collapse; margin: 12px 0; }
        th { background: var(--primary); color: #fff; text-align: left; padding: 6px 8px; }
        td { padding: 6px 8px; border-bottom: 1px solid var(--border); vertical-align: top; }
        tr:nth-child(even) td { background: #f1f5f9; }
        .sev-critical { color: #fff; background: var(--danger); border-radius: 3px; padding: 1px 6px; }
        .sev-high { color: var(--danger); font-weight: 600; }
        .sev-medium { color: #e67e22; }
        .sev-low { color: var(--text-dim); }
        footer { color: var(--text-dim); font-size: 12px; text-align: center; }
    </style>
</head>
<body>
<header>
    <h1>{{ .Title }}</h1>
    {{- if .Subtitle }}
    <p>{{ .Subtitle }}</p>
    {{- end }}
    <p>Generated {{ dateInZone "2006-01-02 15:04 MST" .Generated "UTC" }}</p>
</header>

{{- if .Stats }}
<div class="stats">
    {{- range .Stats }}
    <div class="stat"><div class="label">{{ .Label }}</div><div class="value">{{ .Value }}</div></div>
    {{- end }}
</div>
{{- end }}

{{- if .Alerts }}
<div class="alerts">
    <strong>{{ len .Alerts }} alert{{ if gt (len .Alerts) 1 }}s{{ end }}</strong>
    <ul>
    {{- range .Alerts }}
        <li>{{ . }}</li>
    {{- end }}
    </ul>
</div>
{{- end }}

{{- range .Sections }}
<section>
    <h2>{{ .Title }}</h2>
    {{- with .Note }}<p>{{ . }}</p>{{ end }}
    {{- if .Charts }}
    <div class="charts">
        {{- range .Charts }}
        <img src="{{ . }}" alt="{{ . | base | trimSuffix ".png" | replace "_" " " | title }}">
        {{- end }}
    </div>
    {{- end }}
    {{- range .Tables }}
    <h3>{{ .Title }}</h3>
    {{- if .Rows }}
    <table>
        <thead><tr>{{ range .Columns }}<th>{{ . }}</th>{{ end }}</tr></thead>
        <tbody>
        {{- range .Rows }}
            <tr>{{ range . }}<td><span class="{{ severityClass . }}">{{ . }}</span></td>{{ end }}</tr>
        {{- end }}
        </tbody>
    </table>
    {{- else }}
    <p>No data.</p>
    {{- end }}
    {{- end }}
</section>
{{- end }}

<footer>scantrail {{ .Version | default "dev" }}</footer>
<script type="application/json" id="report-data">{{ .DataJSON }}</script>
</body>
</html>
`
