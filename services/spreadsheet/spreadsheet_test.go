package spreadsheet

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/cheti/core/certificate"
	"github.com/trezcool/cheti/tests"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []certificate.BatchItem
		wantErr string
	}{
		{
			name: "all columns",
			input: "\ufeffParticipant ID,participant_name,program,program_code,title,subtitle,issue_date,grade,email,document\n" +
				"A001,Amani Juma,Civil Engineering,BE,Bachelor of Engineering,With Honours,2025-10-03,First Class,amani@example.com,\n",
			want: []certificate.BatchItem{{
				Row: 2, ParticipantID: "A001", ParticipantName: "Amani Juma", ProgramName: "Civil Engineering",
				ProgramCode: "BE", Title: "Bachelor of Engineering", Subtitle: "With Honours", IssueDate: "2025-10-03",
				Grade: "First Class", Email: "amani@example.com",
			}},
		},
		{
			name: "reordered columns, short and blank rows",
			input: "title,program,participant_name,participant_id,notes\n" +
				"Bachelor of Laws,Law,Baraka Ali,B002\n" +
				",,,\n" +
				"Bachelor of Laws,Law,Chausiku Mrema,B003,late\n",
			want: []certificate.BatchItem{
				{Row: 2, ParticipantID: "B002", ParticipantName: "Baraka Ali", ProgramName: "Law", Title: "Bachelor of Laws"},
				{Row: 4, ParticipantID: "B003", ParticipantName: "Chausiku Mrema", ProgramName: "Law", Title: "Bachelor of Laws"},
			},
		},
		{
			name:  "header only",
			input: "participant_id,participant_name,program,title\n",
			want:  []certificate.BatchItem{},
		},
		{name: "empty", input: "", wantErr: ErrNoHeader.Error()},
		{name: "missing column", input: "participant_id,participant_name,title\nA001,Amani,BE\n", wantErr: `missing column "program"`},
		{name: "duplicate column", input: "participant_id,participant_name,program,title,Title\n", wantErr: `duplicate column "title"`},
		{name: "bad quoting", input: "participant_id,participant_name,program,title\n\"A001,x\n", wantErr: "reading csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCSV(strings.NewReader(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newWorkbook(t *testing.T, rows ...[]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestParseXLSX(t *testing.T) {
	buf := newWorkbook(t,
		[]interface{}{"participant_id", "participant_name", "program", "title", "issue_date", "grade"},
		[]interface{}{"A001", "Amani Juma", "Civil Engineering", "Bachelor of Engineering", "2025-10-03", "First Class"},
		[]interface{}{nil, nil, nil, nil, nil, nil},
		[]interface{}{1002, "Baraka Ali", "Civil Engineering", "Bachelor of Engineering", testutil.Date(2024, 4, 30)},
	)

	got, err := ParseXLSX(buf)
	require.NoError(t, err)
	assert.Equal(t, []certificate.BatchItem{
		{
			Row: 2, ParticipantID: "A001", ParticipantName: "Amani Juma", ProgramName: "Civil Engineering",
			Title: "Bachelor of Engineering", IssueDate: "2025-10-03", Grade: "First Class",
		},
		{
			Row: 4, ParticipantID: "1002", ParticipantName: "Baraka Ali", ProgramName: "Civil Engineering",
			Title: "Bachelor of Engineering", IssueDate: "2024-04-30",
		},
	}, got)
}

func TestParse(t *testing.T) {
	csvInput := "participant_id,participant_name,program,title\nA001,Amani Juma,Civil Engineering,Bachelor of Engineering\n"

	tests := []struct {
		name     string
		filename string
		input    func(t *testing.T) *bytes.Buffer
		wantLen  int
		wantErr  error
	}{
		{name: "csv", filename: "batch.CSV", input: func(*testing.T) *bytes.Buffer { return bytes.NewBufferString(csvInput) }, wantLen: 1},
		{name: "xlsx", filename: "batch.xlsx", input: func(t *testing.T) *bytes.Buffer {
			return newWorkbook(t,
				[]interface{}{"participant_id", "participant_name", "program", "title"},
				[]interface{}{"A001", "Amani Juma", "Civil Engineering", "Bachelor of Engineering"},
			)
		}, wantLen: 1},
		{name: "unsupported", filename: "batch.pdf", input: func(*testing.T) *bytes.Buffer { return bytes.NewBufferString(csvInput) }, wantErr: ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.filename, tt.input(t))
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func TestExcelDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "45933", want: "2025-10-03"},
		{in: "2025-10-03", want: "2025-10-03"},
		{in: " ", want: ""},
		{in: "-3", want: "-3"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, excelDate(tt.in))
		})
	}
}
