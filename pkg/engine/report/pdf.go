package report

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/go-pdf/fpdf"
)

var (
	colorPrimary     = [3]int{30, 58, 95}
	colorDanger      = [3]int{231, 76, 60}
	colorTextDark    = [3]int{44, 62, 80}
	colorTextMuted   = [3]int{127, 140, 141}
	colorTableHeader = [3]int{30, 58, 95}
	colorTableAlt    = [3]int{241, 245, 249}
	colorGridLine    = [3]int{220, 220, 220}
)

// pdfMaxRows caps table rows per section to keep the document printable.
const pdfMaxRows = 40

// WritePDF renders doc plus bar or line charts drawn with PDF primitives.
func (r *Renderer) WritePDF(name string, doc Document, charts []Chart) (string, error) {
	data, err := GeneratePDF(doc, charts)
	if err != nil {
		return "", err
	}
	p := r.path(name)
	if err := os.WriteFile(p, data, 0644); err != nil {
		return "", err
	}
	r.Logger.Info("pdf report written", "file", p)
	return p, nil
}

// GeneratePDF returns the PDF bytes.
func GeneratePDF(doc Document, charts []Chart) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 25)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	writeSummary(pdf, tr, doc)

	for _, c := range charts {
		if c.Empty() || c.Kind == KindPie {
			continue
		}
		if pdf.GetY() > 195 {
			pdf.AddPage()
		}
		pdf.SetFont("Arial", "B", 11)
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		pdf.CellFormat(0, 7, tr(c.Title), "", 1, "L", false, 0, "")
		y := pdf.GetY()
		drawBars(pdf, tr, c, 25, y, 160, 55)
		pdf.SetY(y + 55 + 12)
	}

	for _, s := range doc.Sections {
		for _, t := range s.Tables {
			if len(t.Rows) == 0 {
				continue
			}
			pdf.AddPage()
			writeTable(pdf, tr, t)
		}
	}

	addPageNumbers(pdf)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDF output error: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(pdf *fpdf.Fpdf, tr func(string) string, doc Document) {
	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.Rect(0, 0, 210, 38, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Arial", "B", 20)
	pdf.SetXY(20, 10)
	pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.SetX(20)
	pdf.CellFormat(0, 6, tr(doc.Subtitle), "", 1, "L", false, 0, "")
	pdf.SetY(46)

	pdf.SetFont("Arial", "", 10)
	for i, s := range doc.Stats {
		col := i % 2
		x := 20 + float64(col)*85
		if col == 0 && i > 0 {
			pdf.Ln(8)
		}
		y := pdf.GetY()
		pdf.SetXY(x, y)
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.CellFormat(45, 7, tr(s.Label), "", 0, "L", false, 0, "")
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(35, 7, tr(s.Value), "", 0, "R", false, 0, "")
		pdf.SetFont("Arial", "", 10)
	}
	pdf.Ln(12)

	if len(doc.Alerts) > 0 {
		pdf.SetTextColor(colorDanger[0], colorDanger[1], colorDanger[2])
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 7, "Alerts", "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, a := range doc.Alerts {
			pdf.MultiCell(0, 5, tr(a), "", "L", false)
		}
		pdf.Ln(4)
	}
}

// drawBars draws each point of the first series as a bar, or a polyline for line charts.
func drawBars(pdf *fpdf.Fpdf, tr func(string) string, c Chart, x, y, width, height float64) {
	points := c.Series[0].Points
	maxVal := 0.0
	for _, s := range c.Series {
		for _, p := range s.Points {
			maxVal = math.Max(maxVal, p.Value)
		}
	}
	if maxVal <= 0 {
		maxVal = 1
	}
	maxVal *= 1.1

	pdf.SetFillColor(255, 255, 255)
	pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
	pdf.SetLineWidth(0.3)
	pdf.Rect(x, y, width, height, "FD")

	pdf.SetFont("Arial", "", 7)
	numGridLines := 5
	for i := 0; i <= numGridLines; i++ {
		gridY := y + height - (float64(i)/float64(numGridLines))*height
		val := (float64(i) / float64(numGridLines)) * maxVal

		pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
		pdf.SetLineWidth(0.1)
		pdf.Line(x, gridY, x+width, gridY)

		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.SetXY(x-15, gridY-2)
		pdf.CellFormat(12, 5, fmt.Sprintf("%.0f", val), "", 0, "R", false, 0, "")
	}

	n := len(points)
	if n == 0 {
		return
	}
	slot := width / float64(n)

	if c.Kind == KindBar && len(c.Series) == 1 {
		for i, p := range points {
			h := (p.Value / maxVal) * height
			col := colorAt(i)
			pdf.SetFillColor(int(col.R), int(col.G), int(col.B))
			pdf.Rect(x+float64(i)*slot+slot*0.15, y+height-h, slot*0.7, h, "F")
		}
	} else {
		for si, s := range c.Series {
			col := colorAt(si)
			pdf.SetDrawColor(int(col.R), int(col.G), int(col.B))
			pdf.SetLineWidth(0.6)
			for i := 1; i < len(s.Points); i++ {
				x1 := x + (float64(i-1)+0.5)*slot
				x2 := x + (float64(i)+0.5)*slot
				y1 := y + height - (s.Points[i-1].Value/maxVal)*height
				y2 := y + height - (s.Points[i].Value/maxVal)*height
				pdf.Line(x1, y1, x2, y2)
			}
		}
	}

	// First and last labels only, as long labels overlap.
	pdf.SetFont("Arial", "", 7)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.SetXY(x, y+height+1)
	pdf.CellFormat(60, 4, tr(points[0].Label), "", 0, "L", false, 0, "")
	if n > 1 {
		pdf.SetXY(x+width-60, y+height+1)
		pdf.CellFormat(60, 4, tr(points[n-1].Label), "", 0, "R", false, 0, "")
	}
}

func writeTable(pdf *fpdf.Fpdf, tr func(string) string, t Table) {
	pdf.SetFont("Arial", "B", 12)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.CellFormat(0, 8, tr(t.Title), "", 1, "L", false, 0, "")

	cols := len(t.Columns)
	if cols == 0 {
		return
	}
	colWidth := 170.0 / float64(cols)
	maxChars := int(colWidth / 1.6)

	pdf.SetFont("Arial", "B", 8)
	pdf.SetFillColor(colorTableHeader[0], colorTableHeader[1], colorTableHeader[2])
	pdf.SetTextColor(255, 255, 255)
	for _, c := range t.Columns {
		pdf.CellFormat(colWidth, 7, tr(truncate(c, maxChars)), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 7)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	for i, row := range t.Rows {
		if i >= pdfMaxRows {
			pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
			pdf.CellFormat(0, 6, fmt.Sprintf("... %d more rows in %s", len(t.Rows)-pdfMaxRows, t.File), "", 1, "L", false, 0, "")
			break
		}
		fill := i%2 == 1
		pdf.SetFillColor(colorTableAlt[0], colorTableAlt[1], colorTableAlt[2])
		for j := 0; j < cols; j++ {
			v := ""
			if j < len(row) {
				v = row[j]
			}
			pdf.CellFormat(colWidth, 6, tr(truncate(v, maxChars)), "1", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
	}
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if maxLen <= 3 || len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

func addPageNumbers(pdf *fpdf.Fpdf) {
	// Footers must not trigger page breaks.
	pdf.SetAutoPageBreak(false, 0)

	total := pdf.PageCount()
	for i := 1; i <= total; i++ {
		pdf.SetPage(i)
		_, pageHeight := pdf.GetPageSize()
		pdf.SetY(pageHeight - 15)
		pdf.SetFont("Arial", "", 8)
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of %d", i, total), "", 0, "C", false, 0, "")
	}
}
