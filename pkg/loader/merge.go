package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/DrSkyle/scantrail/pkg/finding"
)

// MergedColumns is the header written by Merge.
var MergedColumns = []string{
	ColFindingUID,
	ColTimestamp,
	ColAccountUID,
	ColAccountName,
	ColRegion,
	ColCheckID,
	ColCheckTitle,
	ColServiceName,
	ColSeverity,
	ColStatus,
	ColResourceUID,
	ColResourceName,
	ColResourceType,
	ColRemediation,
	ColSourceFile,
	ColScanTime,
}

// Merge writes findings as one semicolon-delimited export that Parse can read back
// with each row's source file and scan time intact.
func Merge(w io.Writer, findings []finding.Finding) error {
	cw := csv.NewWriter(w)
	cw.Comma = Delimiter

	if err := cw.Write(MergedColumns); err != nil {
		return err
	}

	for _, f := range findings {
		record := []string{
			f.ID,
			f.Timestamp.Format(time.RFC3339Nano),
			f.AccountID,
			f.AccountName,
			f.Region,
			f.CheckID,
			f.CheckTitle,
			f.Service,
			f.Severity.String(),
			string(f.Status),
			f.ResourceID,
			f.ResourceName,
			f.ResourceType,
			f.Remediation,
			f.Source,
			f.ScanTime.Format(time.RFC3339Nano),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write %s: %w", f.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Summary counts merged findings by severity and status.
type Summary struct {
	Total            int                       `json:"total_findings"`
	Files            int                       `json:"files"`
	BySeverity       map[string]int            `json:"by_severity"`
	ByStatus         map[string]int            `json:"by_status"`
	BySeverityStatus map[string]map[string]int `json:"by_severity_status"`
}

// Summarize builds the merge summary.
func Summarize(res *Result) Summary {
	s := Summary{
		Total:            len(res.Findings),
		Files:            len(res.Files),
		BySeverity:       map[string]int{},
		ByStatus:         map[string]int{},
		BySeverityStatus: map[string]map[string]int{},
	}
	for _, f := range res.Findings {
		sev := f.Severity.String()
		st := string(f.Status)
		s.BySeverity[sev]++
		s.ByStatus[st]++
		if s.BySeverityStatus[sev] == nil {
			s.BySeverityStatus[sev] = map[string]int{}
		}
		s.BySeverityStatus[sev][st]++
	}
	return s
}
