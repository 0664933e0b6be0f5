// Package report renders labeled tables and series into CSV, PNG, HTML and PDF artifacts.
// It knows nothing about findings; callers map their results onto Table, Chart and Document.
package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Kind selects how a chart is drawn.
type Kind string

const (
	KindLine Kind = "line"
	KindBar  Kind = "bar"
	KindPie  Kind = "pie"
)

// Point is one (dimension, value) pair.
type Point struct {
	Label string
	Value float64
}

// Series is a named list of points. Series of one chart share their labels.
type Series struct {
	Name   string
	Points []Point
}

// Chart describes one image artifact.
type Chart struct {
	File   string
	Title  string
	XLabel string
	YLabel string
	Kind   Kind
	Series []Series
}

// Empty reports whether the chart has nothing worth drawing.
func (c Chart) Empty() bool {
	for _, s := range c.Series {
		for _, p := range s.Points {
			if p.Value != 0 {
				return false
			}
		}
	}
	return true
}

// Labels returns the dimension labels of the first series.
func (c Chart) Labels() []string {
	if len(c.Series) == 0 {
		return nil
	}
	out := make([]string, len(c.Series[0].Points))
	for i, p := range c.Series[0].Points {
		out[i] = p.Label
	}
	return out
}

// Table is a rectangular data set written as CSV and shown in documents.
type Table struct {
	File    string
	Title   string
	Columns []string
	Rows    [][]string
}

// Stat is one headline number.
type Stat struct {
	Label string
	Value string
}

// Section groups charts and tables under a heading.
type Section struct {
	Title  string
	Note   string
	Charts []string // chart files, relative to the output directory
	Tables []Table
}

// Document is the content of the HTML and PDF reports.
type Document struct {
	Title     string
	Subtitle  string
	Generated time.Time
	Version   string
	Stats     []Stat
	Alerts    []string
	Sections  []Section
}

// Renderer writes artifacts into one directory.
type Renderer struct {
	OutputDir string
	Logger    *slog.Logger

	Width  int
	Height int
}

// NewRenderer creates the output directory if needed.
func NewRenderer(dir string, logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Renderer{OutputDir: dir, Logger: logger, Width: 1200, Height: 600}, nil
}

func (r *Renderer) path(name string) string {
	return filepath.Join(r.OutputDir, name)
}
