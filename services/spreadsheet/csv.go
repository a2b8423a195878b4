package spreadsheet

import (
	"encoding/csv"
	"io"

	"github.com/pkg/errors"

	"github.com/trezcool/cheti/core/certificate"
)

// ParseCSV reads a comma separated file.
func ParseCSV(r io.Reader) ([]certificate.BatchItem, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "reading csv")
	}
	return items(rows)
}
