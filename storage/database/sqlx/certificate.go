package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
)

const uniqueViolation = "23505"

const certificateColumns = `id, partition_id, participant_id, participant_name, participant_email, program_name,
	program_code, title, subtitle, grade, issue_date, issued_number, verification_id, document_url,
	verification_count, created_at, updated_at`

type (
	partitionRow struct {
		ID        string    `db:"id"`
		Code      string    `db:"code"`
		Name      string    `db:"name"`
		CreatedAt time.Time `db:"created_at"`
	}

	certificateRow struct {
		ID                string      `db:"id"`
		PartitionID       string      `db:"partition_id"`
		ParticipantID     string      `db:"participant_id"`
		ParticipantName   string      `db:"participant_name"`
		ParticipantEmail  null.String `db:"participant_email"`
		ProgramName       string      `db:"program_name"`
		ProgramCode       string      `db:"program_code"`
		Title             string      `db:"title"`
		Subtitle          null.String `db:"subtitle"`
		Grade             null.String `db:"grade"`
		IssueDate         time.Time   `db:"issue_date"`
		IssuedNumber      int         `db:"issued_number"`
		VerificationID    string      `db:"verification_id"`
		DocumentURL       null.String `db:"document_url"`
		VerificationCount int         `db:"verification_count"`
		CreatedAt         time.Time   `db:"created_at"`
		UpdatedAt         time.Time   `db:"updated_at"`
	}
)

func (r partitionRow) toPartition() certificate.Partition {
	return certificate.Partition{ID: r.ID, Code: r.Code, Name: r.Name, CreatedAt: r.CreatedAt.UTC()}
}

func optional(s string) null.String {
	return null.NewString(s, s != "")
}

func newCertificateRow(c certificate.Certificate) certificateRow {
	return certificateRow{
		ID:                c.ID,
		PartitionID:       c.PartitionID,
		ParticipantID:     c.ParticipantID,
		ParticipantName:   c.ParticipantName,
		ParticipantEmail:  optional(c.ParticipantEmail),
		ProgramName:       c.ProgramName,
		ProgramCode:       c.ProgramCode,
		Title:             c.Title,
		Subtitle:          optional(c.Subtitle),
		Grade:             optional(c.Grade),
		IssueDate:         c.IssueDate,
		IssuedNumber:      c.IssuedNumber,
		VerificationID:    c.VerificationID,
		DocumentURL:       optional(c.DocumentURL),
		VerificationCount: c.VerificationCount,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func (r certificateRow) toCertificate() certificate.Certificate {
	issued := r.IssueDate
	return certificate.Certificate{
		ID:                r.ID,
		PartitionID:       r.PartitionID,
		ParticipantID:     r.ParticipantID,
		ParticipantName:   r.ParticipantName,
		ParticipantEmail:  r.ParticipantEmail.String,
		ProgramName:       r.ProgramName,
		ProgramCode:       r.ProgramCode,
		Title:             r.Title,
		Subtitle:          r.Subtitle.String,
		Grade:             r.Grade.String,
		IssueDate:         time.Date(issued.Year(), issued.Month(), issued.Day(), 0, 0, 0, 0, time.UTC),
		IssuedNumber:      r.IssuedNumber,
		VerificationID:    r.VerificationID,
		DocumentURL:       r.DocumentURL.String,
		VerificationCount: r.VerificationCount,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

// mapError translates driver errors into repository sentinels.
func mapError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return certificate.ErrDuplicateKey
	}
	return err
}

type certificateRepository struct {
	db *sqlx.DB
}

func NewCertificateRepository(db *sqlx.DB) certificate.Repository {
	return &certificateRepository{db: db}
}

func (repo *certificateRepository) CreatePartition(ctx context.Context, p certificate.Partition) (certificate.Partition, error) {
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO partitions (id, code, name, created_at) VALUES (:id, :code, :name, :created_at)`,
		partitionRow{ID: p.ID, Code: p.Code, Name: p.Name, CreatedAt: p.CreatedAt},
	)
	if err = mapError(err, nil); err != nil {
		return certificate.Partition{}, errors.Wrap(err, "inserting partition")
	}
	return p, nil
}

func (repo *certificateRepository) getPartition(ctx context.Context, where string, arg string) (certificate.Partition, error) {
	var row partitionRow
	err := repo.db.GetContext(ctx, &row, `SELECT id, code, name, created_at FROM partitions WHERE `+where+` = $1`, arg)
	if err = mapError(err, certificate.ErrPartitionNotFound); err != nil {
		return certificate.Partition{}, err
	}
	return row.toPartition(), nil
}

func (repo *certificateRepository) GetPartitionByID(ctx context.Context, id string) (certificate.Partition, error) {
	return repo.getPartition(ctx, "id", id)
}

func (repo *certificateRepository) GetPartitionByCode(ctx context.Context, code string) (certificate.Partition, error) {
	return repo.getPartition(ctx, "code", code)
}

func (repo *certificateRepository) QueryPartitions(ctx context.Context) ([]certificate.Partition, error) {
	var rows []partitionRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT id, code, name, created_at FROM partitions ORDER BY code`); err != nil {
		return nil, errors.Wrap(err, "querying partitions")
	}
	partitions := make([]certificate.Partition, 0, len(rows))
	for _, r := range rows {
		partitions = append(partitions, r.toPartition())
	}
	return partitions, nil
}

func (repo *certificateRepository) getCertificate(ctx context.Context, where string, args ...interface{}) (certificate.Certificate, error) {
	var row certificateRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+certificateColumns+` FROM certificates WHERE `+where, args...)
	if err = mapError(err, certificate.ErrNotFound); err != nil {
		return certificate.Certificate{}, err
	}
	return row.toCertificate(), nil
}

func (repo *certificateRepository) GetCertificateByKey(ctx context.Context, partitionID string, key certificate.Key) (certificate.Certificate, error) {
	return repo.getCertificate(ctx,
		`partition_id = $1 AND participant_id = $2 AND program_name = $3 AND title = $4`,
		partitionID, key.ParticipantID, key.ProgramName, key.Title,
	)
}

func (repo *certificateRepository) GetCertificateByID(ctx context.Context, partitionID, id string) (certificate.Certificate, error) {
	return repo.getCertificate(ctx, `partition_id = $1 AND id = $2`, partitionID, id)
}

func (repo *certificateRepository) GetCertificateByVerificationID(ctx context.Context, vid string) (certificate.Certificate, error) {
	return repo.getCertificate(ctx, `verification_id = $1`, vid)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (repo *certificateRepository) FilterCertificates(ctx context.Context, partitionID string, filter certificate.QueryFilter) ([]certificate.Certificate, error) {
	conds := []string{"partition_id = $1"}
	args := []interface{}{partitionID}
	next := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Search != "" {
		p := next("%" + likeEscaper.Replace(filter.Search) + "%")
		conds = append(conds, "(participant_id ILIKE "+p+" OR participant_name ILIKE "+p+" OR verification_id ILIKE "+p+")")
	}
	if filter.Program != "" {
		conds = append(conds, "program_name = "+next(filter.Program))
	}
	if filter.Title != "" {
		conds = append(conds, "title = "+next(filter.Title))
	}

	q := `SELECT ` + certificateColumns + ` FROM certificates WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY ` + core.OrderByClause(filter.Ordering, certificate.DefaultOrdering)

	var rows []certificateRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering certificates")
	}
	certs := make([]certificate.Certificate, 0, len(rows))
	for _, r := range rows {
		certs = append(certs, r.toCertificate())
	}
	return certs, nil
}

func (repo *certificateRepository) ListVerificationIDs(ctx context.Context, partitionID string) ([]string, error) {
	vids := make([]string, 0)
	if err := repo.db.SelectContext(ctx, &vids, `SELECT verification_id FROM certificates WHERE partition_id = $1`, partitionID); err != nil {
		return nil, errors.Wrap(err, "listing verification IDs")
	}
	return vids, nil
}

func (repo *certificateRepository) CreateCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	_, err := repo.db.NamedExecContext(ctx,
		`INSERT INTO certificates (`+certificateColumns+`) VALUES (
			:id, :partition_id, :participant_id, :participant_name, :participant_email, :program_name,
			:program_code, :title, :subtitle, :grade, :issue_date, :issued_number, :verification_id, :document_url,
			:verification_count, :created_at, :updated_at
		)`,
		newCertificateRow(cert),
	)
	if err = mapError(err, nil); err != nil {
		return certificate.Certificate{}, errors.Wrap(err, "inserting certificate")
	}
	return cert, nil
}

func (repo *certificateRepository) UpdateCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	// only save mutable fields
	res, err := repo.db.NamedExecContext(ctx,
		`UPDATE certificates SET
			participant_name = :participant_name,
			participant_email = :participant_email,
			subtitle = :subtitle,
			grade = :grade,
			issue_date = :issue_date,
			document_url = :document_url,
			updated_at = :updated_at
		WHERE id = :id`,
		newCertificateRow(cert),
	)
	if err != nil {
		return certificate.Certificate{}, errors.Wrap(err, "updating certificate")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return certificate.Certificate{}, certificate.ErrNotFound
	}
	return repo.GetCertificateByID(ctx, cert.PartitionID, cert.ID)
}

func (repo *certificateRepository) IncrementVerificationCount(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `UPDATE certificates SET verification_count = verification_count + 1 WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "incrementing verification count")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return certificate.ErrNotFound
	}
	return nil
}

func (repo *certificateRepository) NextSequence(ctx context.Context, partitionID string, floor int) (int, error) {
	var next int
	err := repo.db.GetContext(ctx, &next,
		`INSERT INTO certificate_sequences (partition_id, last_value) VALUES ($1, $2::INTEGER + 1)
		ON CONFLICT (partition_id) DO UPDATE SET last_value = GREATEST(certificate_sequences.last_value, $2::INTEGER) + 1
		RETURNING last_value`,
		partitionID, floor,
	)
	if err != nil {
		return 0, errors.Wrap(err, "allocating certificate number")
	}
	return next, nil
}

func (repo *certificateRepository) ReleaseSequence(ctx context.Context, partitionID string, value int) (bool, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE certificate_sequences SET last_value = last_value - 1 WHERE partition_id = $1 AND last_value = $2`,
		partitionID, value,
	)
	if err != nil {
		return false, errors.Wrap(err, "releasing certificate number")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "releasing certificate number")
	}
	return n == 1, nil
}
