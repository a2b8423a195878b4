// Package spreadsheet reads certificate batches from xlsx and csv files.
// The first row is a header naming the columns; other columns are ignored.
package spreadsheet

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/cheti/core/certificate"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format, expected .xlsx or .csv")
	ErrNoHeader          = errors.New("the file has no header row")
)

// columns
const (
	colParticipantID   = "participant_id"
	colParticipantName = "participant_name"
	colProgram         = "program"
	colProgramCode     = "program_code"
	colTitle           = "title"
	colSubtitle        = "subtitle"
	colIssueDate       = "issue_date"
	colGrade           = "grade"
	colEmail           = "email"
	colDocument        = "document"
)

var requiredColumns = []string{colParticipantID, colParticipantName, colProgram, colTitle}

// Parse reads the batch items of a file, picking the format from its extension.
func Parse(filename string, r io.Reader) ([]certificate.BatchItem, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return ParseXLSX(r)
	case ".csv":
		return ParseCSV(r)
	default:
		return nil, ErrUnsupportedFormat
	}
}

type header map[string]int

func newHeader(row []string) (header, error) {
	h := make(header, len(row))
	for i, name := range row {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		name = strings.ReplaceAll(name, " ", "_")
		if name == "" {
			continue
		}
		if _, dup := h[name]; dup {
			return nil, errors.Errorf("duplicate column %q", name)
		}
		h[name] = i
	}
	if len(h) == 0 {
		return nil, ErrNoHeader
	}
	for _, col := range requiredColumns {
		if _, ok := h[col]; !ok {
			return nil, errors.Errorf("missing column %q", col)
		}
	}
	return h, nil
}

func (h header) get(row []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// item maps a data row; number is its 1-based row number in the file.
func (h header) item(row []string, number int) certificate.BatchItem {
	return certificate.BatchItem{
		Row:             number,
		ParticipantID:   h.get(row, colParticipantID),
		ParticipantName: h.get(row, colParticipantName),
		ProgramName:     h.get(row, colProgram),
		ProgramCode:     h.get(row, colProgramCode),
		Title:           h.get(row, colTitle),
		Subtitle:        h.get(row, colSubtitle),
		IssueDate:       h.get(row, colIssueDate),
		Grade:           h.get(row, colGrade),
		Email:           h.get(row, colEmail),
		Document:        h.get(row, colDocument),
	}
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// items maps all data rows, skipping blank ones.
func items(rows [][]string) ([]certificate.BatchItem, error) {
	if len(rows) == 0 {
		return nil, ErrNoHeader
	}
	h, err := newHeader(rows[0])
	if err != nil {
		return nil, err
	}
	res := make([]certificate.BatchItem, 0, len(rows)-1)
	for idx, row := range rows[1:] {
		if blank(row) {
			continue
		}
		res = append(res, h.item(row, idx+2))
	}
	return res, nil
}
