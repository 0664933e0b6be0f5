package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultAnalysisConfig(t *testing.T) {
	cfg := DefaultAnalysisConfig()

	if cfg.Granularity != "auto" {
		t.Errorf("Expected granularity auto, got %s", cfg.Granularity)
	}
	if cfg.Policy != "keep-open" {
		t.Errorf("Expected keep-open policy, got %s", cfg.Policy)
	}
	if cfg.TopN <= 0 || cfg.TrendChecks > cfg.TopN {
		t.Errorf("Expected positive TopN covering TrendChecks, got %d/%d", cfg.TopN, cfg.TrendChecks)
	}
}

func TestDefaultOutputConfig(t *testing.T) {
	cfg := DefaultOutputConfig()

	if !cfg.Charts {
		t.Error("Expected charts enabled by default")
	}
	if cfg.HTML || cfg.PDF {
		t.Error("Expected documents disabled by default")
	}
	if cfg.Dir != DefaultOutputDir {
		t.Errorf("Expected %s, got %s", DefaultOutputDir, cfg.Dir)
	}
}

func TestLedgerPath(t *testing.T) {
	if got, want := LedgerPath("out"), filepath.Join("out", ".scantrail", "ledger.jsonl"); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if got := LedgerPath(""); filepath.Dir(filepath.Dir(got)) != DefaultOutputDir {
		t.Errorf("Expected ledger under %s, got %s", DefaultOutputDir, got)
	}
}
