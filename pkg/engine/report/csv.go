package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// WriteCSV writes t to <OutputDir>/<t.File> and returns the path.
func (r *Renderer) WriteCSV(t Table) (string, error) {
	p := r.path(t.File)
	f, err := os.Create(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := EncodeCSV(f, t); err != nil {
		return "", fmt.Errorf("write %s: %w", t.File, err)
	}
	r.Logger.Debug("csv written", "file", p, "rows", len(t.Rows))
	return p, nil
}

// EncodeCSV writes the header and rows. An empty table still gets its header.
func EncodeCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = sanitizeForCSV(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// sanitizeForCSV defuses values a spreadsheet would evaluate as a formula.
// Negative numbers are left alone.
func sanitizeForCSV(s string) string {
	if len(s) == 0 {
		return s
	}
	switch s[0] {
	case '=', '+', '@', '\t', '\r':
		return "'" + s
	case '-':
		if len(s) > 1 && (s[1] >= '0' && s[1] <= '9' || s[1] == '.') {
			return s
		}
		return "'" + s
	}
	return s
}
