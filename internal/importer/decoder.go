// Package importer turns uploaded spreadsheets into validated job records.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for files that are neither .xlsx nor .csv.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Row maps header names to cell text.
type Row map[string]string

// Table is a decoded sheet: its header row and the non-blank data rows.
// Lines holds the 1-based sheet row of each entry in Rows.
type Table struct {
	Headers []string
	Rows    []Row
	Lines   []int
}

// Decoder reads a tabular file whose first row is the header.
type Decoder interface {
	Decode(r io.Reader) (*Table, error)
}

// DecoderFor picks a decoder from the file extension.
func DecoderFor(filename string) (Decoder, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return XLSXDecoder{}, nil
	case ".csv":
		return CSVDecoder{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// XLSXDecoder reads the first worksheet of an Excel workbook. Cells are read
// raw so date cells arrive as Excel serial numbers.
type XLSXDecoder struct{}

func (XLSXDecoder) Decode(r io.Reader) (*Table, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return &Table{}, nil
	}
	records, err := book.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return buildTable(records), nil
}

// CSVDecoder reads comma-separated text with a header line.
type CSVDecoder struct{}

func (CSVDecoder) Decode(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return buildTable(records), nil
}

func buildTable(records [][]string) *Table {
	table := &Table{}
	if len(records) == 0 {
		return table
	}
	for _, h := range records[0] {
		table.Headers = append(table.Headers, strings.TrimSpace(h))
	}
	for i, record := range records[1:] {
		row := make(Row, len(table.Headers))
		blank := true
		for i, cell := range record {
			if i >= len(table.Headers) || table.Headers[i] == "" {
				continue
			}
			if _, seen := row[table.Headers[i]]; seen {
				continue
			}
			row[table.Headers[i]] = cell
			if strings.TrimSpace(cell) != "" {
				blank = false
			}
		}
		if !blank {
			table.Rows = append(table.Rows, row)
			table.Lines = append(table.Lines, i+2)
		}
	}
	return table
}
