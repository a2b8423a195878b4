package certificate

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/cheti/core"
)

var NowFunc = time.Now // mockable

type Partition struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewPartition contains information needed to create a new Partition.
type NewPartition struct {
	Code string `json:"code" validate:"required,max=16,upper_alphanum"`
	Name string `json:"name" validate:"required,notblank,singleline,max=255"`
}

func (np *NewPartition) Validate() error {
	np.Code = strings.ToUpper(core.CleanString(np.Code))
	np.Name = core.CleanString(np.Name)
	return core.Validate.Struct(np)
}

// Key is the natural identity of a certificate within a partition.
type Key struct {
	ParticipantID string
	ProgramName   string
	Title         string
}

type Certificate struct {
	ID                string    `json:"id"`
	PartitionID       string    `json:"partition_id"`
	ParticipantID     string    `json:"participant_id"`
	ParticipantName   string    `json:"participant_name"`
	ParticipantEmail  string    `json:"participant_email"`
	ProgramName       string    `json:"program"`
	ProgramCode       string    `json:"program_code"`
	Title             string    `json:"title"`
	Subtitle          string    `json:"subtitle"`
	Grade             string    `json:"grade"`
	IssueDate         time.Time `json:"issue_date"`
	IssuedNumber      int       `json:"issued_number"`
	VerificationID    string    `json:"verification_id"`
	DocumentURL       string    `json:"document_url"`
	VerificationCount int       `json:"verification_count"`
	CreatedAt         time.Time `json:"created_at"` // UTC
	UpdatedAt         time.Time `json:"updated_at"` // UTC
}

func (c Certificate) Key() Key {
	return Key{ParticipantID: c.ParticipantID, ProgramName: c.ProgramName, Title: c.Title}
}

// BatchItem is one incoming row of a batch submission.
type BatchItem struct {
	Row             int    `json:"-"` // source row number, if any
	ParticipantID   string `json:"participant_id" validate:"required,notblank,singleline,max=100"`
	ParticipantName string `json:"participant_name" validate:"required,notblank,singleline,max=255"`
	ProgramName     string `json:"program" validate:"required,notblank,singleline,max=255"`
	ProgramCode     string `json:"program_code" validate:"omitempty,max=6,upper_alphanum"`
	Title           string `json:"title" validate:"required,notblank,singleline,max=255"`
	Subtitle        string `json:"subtitle" validate:"omitempty,singleline,max=255"`
	IssueDate       string `json:"issue_date" validate:"required,isodate"`
	Grade           string `json:"grade" validate:"omitempty,singleline,max=50"`
	Email           string `json:"email" validate:"omitempty,email,max=255"`
	Document        string `json:"document" validate:"omitempty,base64"` // base64 encoded PDF

	dateSupplied bool // false when IssueDate was defaulted to today
}

// Validate normalizes the item then validates it.
// Identity fields are trimmed; participant IDs are upper-cased when foldCase is set.
// A blank issue date defaults to today, which only applies to new certificates.
func (it *BatchItem) Validate(foldCase bool) error {
	it.ParticipantID = core.CleanString(it.ParticipantID)
	if foldCase {
		it.ParticipantID = strings.ToUpper(it.ParticipantID)
	}
	it.ParticipantName = core.CleanString(it.ParticipantName)
	it.ProgramName = core.CleanString(it.ProgramName)
	it.ProgramCode = strings.ToUpper(core.CleanString(it.ProgramCode))
	it.Title = core.CleanString(it.Title)
	it.Subtitle = core.CleanString(it.Subtitle)
	it.IssueDate = core.CleanString(it.IssueDate)
	it.dateSupplied = it.IssueDate != ""
	if !it.dateSupplied {
		it.IssueDate = NowFunc().UTC().Format(core.DateLayout)
	}
	it.Grade = core.CleanString(it.Grade)
	it.Email = core.CleanString(it.Email, true /* lower */)
	it.Document = strings.TrimSpace(it.Document)
	return core.Validate.Struct(it)
}

func (it BatchItem) Key() Key {
	return Key{ParticipantID: it.ParticipantID, ProgramName: it.ProgramName, Title: it.Title}
}

func (it BatchItem) issueDate() time.Time {
	d, _ := time.Parse(core.DateLayout, it.IssueDate) // validated
	return d
}

func (it BatchItem) programCode() string {
	if it.ProgramCode != "" {
		return it.ProgramCode
	}
	return ProgramCode(it.ProgramName)
}

func (it BatchItem) document() ([]byte, error) {
	if it.Document == "" {
		return nil, nil
	}
	content, err := base64.StdEncoding.DecodeString(it.Document)
	if err != nil {
		return nil, errors.Wrap(err, "decoding document")
	}
	return content, nil
}

// FailedItem is a batch item that could not be reconciled.
type FailedItem struct {
	Row           int    `json:"row"`
	ParticipantID string `json:"participant_id"`
	Reason        string `json:"reason"`
}

type Counts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Result is the outcome of a reconciliation run. Verification IDs are listed per outcome.
type Result struct {
	Created []string          `json:"created"`
	Updated []string          `json:"updated"`
	Skipped []string          `json:"skipped"`
	Failed  []FailedItem      `json:"failed"`
	Counts  Counts            `json:"counts"`
	Message string            `json:"message"`
	Changes map[string]string `json:"changes,omitempty"` // {verification ID: unified diff}
	DryRun  bool              `json:"dry_run,omitempty"`
}

func newResult() Result {
	return Result{
		Created: make([]string, 0),
		Updated: make([]string, 0),
		Skipped: make([]string, 0),
		Failed:  make([]FailedItem, 0),
		Changes: make(map[string]string),
	}
}

func (r *Result) finalize() {
	r.Counts = Counts{
		Created: len(r.Created),
		Updated: len(r.Updated),
		Skipped: len(r.Skipped),
		Failed:  len(r.Failed),
	}
	r.Message = summary(r.Counts)
}

func summary(c Counts) string {
	msg := fmt.Sprintf("%d created, %d updated, %d skipped", c.Created, c.Updated, c.Skipped)
	if c.Failed > 0 {
		msg += fmt.Sprintf(", %d failed", c.Failed)
	}
	return msg
}

// validationReason flattens validation errors into a single, stable line.
func validationReason(err error) string {
	vErrs, ok := errors.Cause(err).(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	fldErrs := core.TranslateErrors(vErrs, core.Translator)
	flds := make([]string, 0, len(fldErrs))
	for fld := range fldErrs {
		flds = append(flds, fld)
	}
	sort.Strings(flds)
	msgs := make([]string, 0, len(flds))
	for _, fld := range flds {
		msgs = append(msgs, fld+": "+fldErrs[fld])
	}
	return strings.Join(msgs, "; ")
}

type QueryFilter struct {
	Search   string            `query:"search"`
	Program  string            `query:"program"`
	Title    string            `query:"title"`
	Ordering []core.DBOrdering `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Program = core.CleanString(qf.Program)
	qf.Title = core.CleanString(qf.Title)
	qf.Ordering = core.FilterOrderings(qf.Ordering, OrderingFields)
}

// OrderingFields maps the orderable fields to their column names.
var OrderingFields = map[string]string{
	"issued_number":    "issued_number",
	"issue_date":       "issue_date",
	"participant_id":   "participant_id",
	"participant_name": "participant_name",
	"created_at":       "created_at",
	"updated_at":       "updated_at",
}

// DefaultOrdering is applied when a filter has no valid ordering.
const DefaultOrdering = "issued_number ASC"
