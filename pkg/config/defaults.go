// Package config defines default settings for analysis runs.
// Structs carry mapstructure tags so they can be decoded from the viper config file.
package config

import "path/filepath"

// AnalysisConfig controls how findings are aggregated and diffed.
type AnalysisConfig struct {
	// Granularity is auto, day, week or month.
	Granularity string `mapstructure:"granularity"`
	// TopN is the number of checks kept in rankings.
	TopN int `mapstructure:"top"`
	// TrendChecks is the number of checks plotted in the top failing checks trend.
	TrendChecks int `mapstructure:"trend_checks"`
	// ServiceSlices caps the service distribution chart.
	ServiceSlices int `mapstructure:"service_slices"`
	// Policy is keep-open or resolve.
	Policy string `mapstructure:"policy"`
	// Filter is a CEL expression selecting findings.
	Filter string `mapstructure:"filter"`
	// Accounts is the path of the account directory YAML.
	Accounts string `mapstructure:"accounts"`
}

// OutputConfig controls which artifacts are produced.
type OutputConfig struct {
	// Dir is a local directory or an s3://bucket/prefix target.
	Dir    string `mapstructure:"dir"`
	HTML   bool   `mapstructure:"html"`
	PDF    bool   `mapstructure:"pdf"`
	Charts bool   `mapstructure:"charts"`
	// DocumentRows caps table rows embedded in HTML and PDF documents. CSVs are never capped.
	DocumentRows int `mapstructure:"document_rows"`
	ChartWidth   int `mapstructure:"chart_width"`
	ChartHeight  int `mapstructure:"chart_height"`
}

// IntegrationConfig holds optional side outputs.
type IntegrationConfig struct {
	// Ledger is a JSONL path or s3://bucket/key. Empty means inside the output directory.
	Ledger       string `mapstructure:"ledger"`
	HistoryRuns  int    `mapstructure:"history_runs"`
	SlackWebhook string `mapstructure:"slack_webhook"`
	SlackChannel string `mapstructure:"slack_channel"`
	MetricsFile  string `mapstructure:"metrics_file"`
}

// Defaults.
const (
	DefaultOutputDir   = "scantrail-out"
	DefaultGranularity = "auto"
	DefaultPolicy      = "keep-open"
	LedgerDir          = ".scantrail"
	LedgerFile         = "ledger.jsonl"
	// StagingDir receives artifacts before they are uploaded to an s3 output.
	StagingDir = "scantrail-staging"
)

// DefaultAnalysisConfig returns default analysis parameters.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		Granularity:   DefaultGranularity,
		TopN:          10,
		TrendChecks:   5,
		ServiceSlices: 10,
		Policy:        DefaultPolicy,
	}
}

// DefaultOutputConfig returns default output settings.
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		Dir:          DefaultOutputDir,
		Charts:       true,
		DocumentRows: 50,
		ChartWidth:   1200,
		ChartHeight:  600,
	}
}

// DefaultIntegrationConfig returns default integration settings.
func DefaultIntegrationConfig() IntegrationConfig {
	return IntegrationConfig{HistoryRuns: 10}
}

// LedgerPath is the default ledger location for an output directory.
func LedgerPath(outputDir string) string {
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	return filepath.Join(outputDir, LedgerDir, LedgerFile)
}

// Settings is the full config file layout.
type Settings struct {
	Input        string            `mapstructure:"input"`
	Analysis     AnalysisConfig    `mapstructure:"analysis"`
	Output       OutputConfig      `mapstructure:"output"`
	Integrations IntegrationConfig `mapstructure:"integrations"`
}

// DefaultSettings returns every default.
func DefaultSettings() Settings {
	return Settings{
		Analysis:     DefaultAnalysisConfig(),
		Output:       DefaultOutputConfig(),
		Integrations: DefaultIntegrationConfig(),
	}
}
