package report

import (
	"bytes"
	"fmt"
	"math"
	"os"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// maxTicks bounds x-axis labels so long periods stay readable.
const maxTicks = 16

// WriteChart renders c as PNG. Charts without data are skipped and return "".
func (r *Renderer) WriteChart(c Chart) (string, error) {
	if c.Empty() {
		r.Logger.Info("skipping chart without data", "chart", c.File)
		return "", nil
	}

	var buf bytes.Buffer
	if err := r.Render(&buf, c); err != nil {
		return "", fmt.Errorf("render %s: %w", c.File, err)
	}

	p := r.path(c.File)
	if err := os.WriteFile(p, buf.Bytes(), 0644); err != nil {
		return "", err
	}
	r.Logger.Debug("chart written", "file", p)
	return p, nil
}

// Render draws c as PNG into buf.
func (r *Renderer) Render(buf *bytes.Buffer, c Chart) error {
	switch c.Kind {
	case KindPie:
		return r.renderPie(buf, c)
	case KindBar:
		if len(c.Series) == 1 {
			return r.renderBar(buf, c)
		}
	}
	if len(c.Labels()) < 2 {
		// A continuous x axis needs two values; one period is drawn as bars.
		return r.renderBar(buf, singlePeriod(c))
	}
	return r.renderLines(buf, c)
}

// singlePeriod folds every series of a one-period chart into a single bar series.
func singlePeriod(c Chart) Chart {
	out := c
	out.Kind = KindBar
	var bars Series
	for _, s := range c.Series {
		for _, p := range s.Points {
			label := s.Name
			if len(c.Series) == 1 || label == "" {
				label = p.Label
			}
			bars.Points = append(bars.Points, Point{Label: label, Value: p.Value})
		}
	}
	bars.Name = c.YLabel
	out.Series = []Series{bars}
	return out
}

var palette = []drawing.Color{
	drawing.ColorFromHex("1e3a5f"),
	drawing.ColorFromHex("e74c3c"),
	drawing.ColorFromHex("2ecc71"),
	drawing.ColorFromHex("f1c40f"),
	drawing.ColorFromHex("3498db"),
	drawing.ColorFromHex("9b59b6"),
	drawing.ColorFromHex("e67e22"),
	drawing.ColorFromHex("7f8c8d"),
}

func colorAt(i int) drawing.Color {
	return palette[i%len(palette)]
}

func maxValue(c Chart) float64 {
	m := 0.0
	for _, s := range c.Series {
		for _, p := range s.Points {
			m = math.Max(m, p.Value)
		}
	}
	if m <= 0 {
		return 1
	}
	return m * 1.1
}

func ticks(labels []string) []chart.Tick {
	step := 1
	if len(labels) > maxTicks {
		step = int(math.Ceil(float64(len(labels)) / maxTicks))
	}
	var out []chart.Tick
	for i, l := range labels {
		if i%step == 0 || i == len(labels)-1 {
			out = append(out, chart.Tick{Value: float64(i), Label: l})
		}
	}
	return out
}

func (r *Renderer) renderLines(buf *bytes.Buffer, c Chart) error {
	labels := c.Labels()
	xMax := math.Max(1, float64(len(labels)-1))

	graph := chart.Chart{
		Title:  c.Title,
		Width:  r.Width,
		Height: r.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:  c.XLabel,
			Range: &chart.ContinuousRange{Min: 0, Max: xMax},
			Ticks: ticks(labels),
		},
		YAxis: chart.YAxis{
			Name:  c.YLabel,
			Range: &chart.ContinuousRange{Min: 0, Max: maxValue(c)},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
	}

	for i, s := range c.Series {
		xs := make([]float64, len(s.Points))
		ys := make([]float64, len(s.Points))
		for j, p := range s.Points {
			xs[j] = float64(j)
			ys[j] = p.Value
		}
		graph.Series = append(graph.Series, chart.ContinuousSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor: colorAt(i),
				StrokeWidth: 2,
				DotColor:    colorAt(i),
				DotWidth:    3,
			},
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, buf)
}

func (r *Renderer) renderBar(buf *bytes.Buffer, c Chart) error {
	points := c.Series[0].Points
	bars := make([]chart.Value, len(points))
	for i, p := range points {
		bars[i] = chart.Value{
			Label: p.Label,
			Value: p.Value,
			Style: chart.Style{FillColor: colorAt(i), StrokeColor: colorAt(i)},
		}
	}

	barWidth := 60
	if n := len(bars); n > 0 {
		if w := (r.Width - 100) / (n * 2); w < barWidth {
			barWidth = int(math.Max(8, float64(w)))
		}
	}

	graph := chart.BarChart{
		Title:    c.Title,
		Width:    r.Width,
		Height:   r.Height,
		BarWidth: barWidth,
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Bottom: 40},
		},
		YAxis: chart.YAxis{
			Name:  c.YLabel,
			Range: &chart.ContinuousRange{Min: 0, Max: maxValue(c)},
		},
		Bars: bars,
	}
	return graph.Render(chart.PNG, buf)
}

func (r *Renderer) renderPie(buf *bytes.Buffer, c Chart) error {
	var values []chart.Value
	for i, p := range c.Series[0].Points {
		if p.Value <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s (%.0f)", p.Label, p.Value),
			Value: p.Value,
			Style: chart.Style{FillColor: colorAt(i)},
		})
	}

	graph := chart.PieChart{
		Title:  c.Title,
		Width:  r.Height,
		Height: r.Height,
		Values: values,
	}
	return graph.Render(chart.PNG, buf)
}
