package importer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/spec-kit/job-tracker/internal/domain"
)

// Column aliases, tried in order. The first alias holding a non-empty value
// wins.
var (
	JobRefAliases       = []string{"Job Ref", "job_ref"}
	ImporterNameAliases = []string{"Importer/Exporter", "Importer Name", "importer_name"}
	ETDAliases          = []string{"ETD", "etd"}
)

var (
	// ErrEmptyFile is returned when the sheet has no data rows.
	ErrEmptyFile = errors.New("file contains no rows")
	// ErrNoValidRows is returned when every row lacked a reference or importer.
	ErrNoValidRows = errors.New("no valid jobs found in file")
)

// MissingColumnsError lists required fields with no matching header.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return "missing required columns: " + strings.Join(e.Missing, ", ")
}

// RowError rejects the batch because of one row.
type RowError struct {
	Line   int
	Field  string
	Value  string
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s %q: %s", e.Line, e.Field, e.Value, e.Reason)
}

// DuplicateRefError reports a reference that appears twice in one file.
type DuplicateRefError struct {
	JobRef string
	Lines  []int
}

func (e *DuplicateRefError) Error() string {
	return fmt.Sprintf("job reference %q appears more than once (rows %v)", e.JobRef, e.Lines)
}

// Record is a normalized row ready for insertion. Line is the 1-based sheet
// row, counting the header as row 1.
type Record struct {
	Line         int
	JobRef       string
	ImporterName string
	ETD          *time.Time
}

// Result is the outcome of normalizing a table.
type Result struct {
	Records []Record
	Skipped int
}

var etdLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2006/01/02",
	time.RFC3339,
}

// Normalize maps the table onto job records. Rows without a reference or an
// importer are skipped; any other defect fails the whole table.
func Normalize(table *Table) (*Result, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	if missing := missingColumns(table.Headers); len(missing) > 0 {
		return nil, &MissingColumnsError{Missing: missing}
	}

	result := &Result{}
	seen := make(map[string]int)
	for i, row := range table.Rows {
		line := i + 2
		if i < len(table.Lines) {
			line = table.Lines[i]
		}
		ref := firstValue(row, JobRefAliases)
		importer := firstValue(row, ImporterNameAliases)
		if ref == "" || importer == "" {
			result.Skipped++
			continue
		}
		if len([]rune(ref)) > domain.MaxJobRefLength {
			return nil, &RowError{Line: line, Field: "job_ref", Value: ref, Reason: "must be at most 100 characters"}
		}
		if len([]rune(importer)) > domain.MaxImporterNameLength {
			return nil, &RowError{Line: line, Field: "importer_name", Value: importer, Reason: "must be at most 200 characters"}
		}
		if first, dup := seen[ref]; dup {
			return nil, &DuplicateRefError{JobRef: ref, Lines: []int{first, line}}
		}
		seen[ref] = line

		record := Record{Line: line, JobRef: ref, ImporterName: importer}
		if raw := firstValue(row, ETDAliases); raw != "" {
			etd, err := ParseETD(raw)
			if err != nil {
				return nil, &RowError{Line: line, Field: "etd", Value: raw, Reason: err.Error()}
			}
			record.ETD = &etd
		}
		result.Records = append(result.Records, record)
	}

	if len(result.Records) == 0 {
		return nil, ErrNoValidRows
	}
	return result, nil
}

// ParseETD accepts ISO, day-first and year-first slash dates, RFC3339
// timestamps and Excel date serials.
func ParseETD(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range etdLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return truncateToDate(t), nil
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 && serial < 2958466 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return truncateToDate(t), nil
		}
	}
	return time.Time{}, errors.New("unrecognized date")
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func firstValue(row Row, aliases []string) string {
	for _, alias := range aliases {
		if v := strings.TrimSpace(row[alias]); v != "" {
			return v
		}
	}
	return ""
}

func missingColumns(headers []string) []string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	hasAny := func(aliases []string) bool {
		for _, a := range aliases {
			if present[a] {
				return true
			}
		}
		return false
	}

	var missing []string
	if !hasAny(JobRefAliases) {
		missing = append(missing, JobRefAliases[0])
	}
	if !hasAny(ImporterNameAliases) {
		missing = append(missing, ImporterNameAliases[0])
	}
	return missing
}
