package spreadsheet

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
)

// ParseXLSX reads the first sheet of a workbook.
func ParseXLSX(r io.Reader) ([]certificate.BatchItem, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "opening workbook")
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, ErrNoHeader
	}
	// raw values keep date cells as serial numbers instead of locale formatted text
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.Wrapf(err, "reading sheet %q", sheet)
	}
	res, err := items(rows)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].IssueDate = excelDate(res[i].IssueDate)
	}
	return res, nil
}

// excelDate converts a date serial number to YYYY-MM-DD; other values are returned as-is.
func excelDate(v string) string {
	v = strings.TrimSpace(v)
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil || serial <= 0 {
		return v
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return v
	}
	return t.Format(core.DateLayout)
}
