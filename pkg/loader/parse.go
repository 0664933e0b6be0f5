package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/DrSkyle/scantrail/pkg/finding"
)

// Delimiter is the field separator of scan exports.
const Delimiter = ';'

// Column names of the export format.
const (
	ColFindingUID   = "FINDING_UID"
	ColAccountUID   = "ACCOUNT_UID"
	ColAccountName  = "ACCOUNT_NAME"
	ColCheckID      = "CHECK_ID"
	ColCheckTitle   = "CHECK_TITLE"
	ColServiceName  = "SERVICE_NAME"
	ColSeverity     = "SEVERITY"
	ColStatus       = "STATUS"
	ColResourceUID  = "RESOURCE_UID"
	ColResourceName = "RESOURCE_NAME"
	ColResourceType = "RESOURCE_TYPE"
	ColRegion       = "REGION"
	ColTimestamp    = "TIMESTAMP"
	ColRemediation  = "REMEDIATION_RECOMMENDATION_TEXT"

	// Written by Merge so a combined file keeps each row's origin.
	ColSourceFile = "SOURCE_FILE"
	ColScanTime   = "SCAN_TIME"
)

// RequiredColumns must be present in every file.
var RequiredColumns = []string{
	ColAccountUID,
	ColCheckID,
	ColStatus,
	ColSeverity,
	ColResourceUID,
	ColRegion,
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts the layouts seen in scan exports and returns UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

var filenamePatterns = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`(\d{4}-\d{2}-\d{2})[_T ](\d{2})[-:](\d{2})[-:](\d{2})`), "2006-01-02 15 04 05"},
	{regexp.MustCompile(`(?:^|\D)(\d{14})(?:\D|$)`), "20060102150405"},
	{regexp.MustCompile(`(?:^|\D)(\d{8})(?:\D|$)`), "20060102"},
	{regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`), "2006-01-02"},
}

// TimestampFromName extracts a scan time embedded in a file name.
func TimestampFromName(name string) (time.Time, bool) {
	base := filepath.Base(name)
	for _, p := range filenamePatterns {
		m := p.re.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		value := strings.Join(m[1:], " ")
		if t, err := time.Parse(p.layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func clean(v string) string {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "none", "null", "nan":
		return ""
	}
	return v
}

// Parse reads one export. The scan time is the earliest row TIMESTAMP, or the
// timestamp embedded in name when the column is absent or empty. Rows carrying
// SCAN_TIME and SOURCE_FILE, as merged files do, keep their own scan and origin.
func Parse(name string, r io.Reader) ([]finding.Finding, error) {
	cr := csv.NewReader(r)
	cr.Comma = Delimiter
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrMissingColumns)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}

	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	nameTime, hasNameTime := TimestampFromName(name)
	_, hasTimestamp := cols[ColTimestamp]
	_, hasScanTime := cols[ColScanTime]
	if !hasTimestamp && !hasScanTime && !hasNameTime {
		missing = append(missing, ColTimestamp)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	get := func(rec []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return clean(rec[i])
	}

	var rows []finding.Finding
	var scanTime time.Time
	pending := 0
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		f := finding.Finding{
			ID:           get(rec, ColFindingUID),
			AccountID:    get(rec, ColAccountUID),
			AccountName:  get(rec, ColAccountName),
			CheckID:      get(rec, ColCheckID),
			CheckTitle:   get(rec, ColCheckTitle),
			Service:      get(rec, ColServiceName),
			Severity:     finding.ParseSeverity(get(rec, ColSeverity)),
			Status:       finding.ParseStatus(get(rec, ColStatus)),
			ResourceID:   get(rec, ColResourceUID),
			ResourceName: get(rec, ColResourceName),
			ResourceType: get(rec, ColResourceType),
			Region:       get(rec, ColRegion),
			Remediation:  get(rec, ColRemediation),
			Source:       name,
		}
		if f.Service == "" {
			f.Service = serviceFromCheck(f.CheckID)
		}
		if src := get(rec, ColSourceFile); src != "" {
			f.Source = src
		}
		ts, hasTS := ParseTimestamp(get(rec, ColTimestamp))
		if hasTS {
			f.Timestamp = ts
		}
		if st, ok := ParseTimestamp(get(rec, ColScanTime)); ok {
			f.ScanTime = st
		} else {
			pending++
			if hasTS && (scanTime.IsZero() || ts.Before(scanTime)) {
				scanTime = ts
			}
		}
		rows = append(rows, f)
	}

	if pending > 0 && scanTime.IsZero() {
		if !hasNameTime {
			return nil, fmt.Errorf("%w: %s", ErrNoTimestamp, filepath.Base(name))
		}
		scanTime = nameTime
	}

	for i := range rows {
		if rows[i].ScanTime.IsZero() {
			rows[i].ScanTime = scanTime
		}
		if rows[i].Timestamp.IsZero() {
			rows[i].Timestamp = rows[i].ScanTime
		}
	}
	return rows, nil
}

// serviceFromCheck uses the check ID prefix, e.g. "iam" for "iam_root_mfa_enabled".
func serviceFromCheck(checkID string) string {
	if i := strings.IndexByte(checkID, '_'); i > 0 {
		return checkID[:i]
	}
	return checkID
}
