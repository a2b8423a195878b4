// Package gormrepos stores certificates in an embedded SQLite database through gorm.
package gormrepos

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
)

// Migrate creates or updates the tables of the repository.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&partitionModel{}, &certificateModel{}, &sequenceModel{}); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}

func mapError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return certificate.ErrDuplicateKey
	default:
		return err
	}
}

type certificateRepository struct {
	db *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) certificate.Repository {
	return &certificateRepository{db: db}
}

func (repo *certificateRepository) CreatePartition(ctx context.Context, p certificate.Partition) (certificate.Partition, error) {
	m := newPartitionModel(p)
	if err := mapError(repo.db.WithContext(ctx).Create(&m).Error, nil); err != nil {
		return certificate.Partition{}, errors.Wrap(err, "inserting partition")
	}
	return m.toPartition(), nil
}

func (repo *certificateRepository) getPartition(ctx context.Context, column, value string) (certificate.Partition, error) {
	var m partitionModel
	err := repo.db.WithContext(ctx).Where(column+" = ?", value).First(&m).Error
	if err = mapError(err, certificate.ErrPartitionNotFound); err != nil {
		return certificate.Partition{}, err
	}
	return m.toPartition(), nil
}

func (repo *certificateRepository) GetPartitionByID(ctx context.Context, id string) (certificate.Partition, error) {
	return repo.getPartition(ctx, "id", id)
}

func (repo *certificateRepository) GetPartitionByCode(ctx context.Context, code string) (certificate.Partition, error) {
	return repo.getPartition(ctx, "code", code)
}

func (repo *certificateRepository) QueryPartitions(ctx context.Context) ([]certificate.Partition, error) {
	var models []partitionModel
	if err := repo.db.WithContext(ctx).Order("code").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "querying partitions")
	}
	partitions := make([]certificate.Partition, 0, len(models))
	for _, m := range models {
		partitions = append(partitions, m.toPartition())
	}
	return partitions, nil
}

func (repo *certificateRepository) getCertificate(ctx context.Context, query interface{}, args ...interface{}) (certificate.Certificate, error) {
	var m certificateModel
	err := repo.db.WithContext(ctx).Where(query, args...).First(&m).Error
	if err = mapError(err, certificate.ErrNotFound); err != nil {
		return certificate.Certificate{}, err
	}
	return m.toCertificate(), nil
}

func (repo *certificateRepository) GetCertificateByKey(ctx context.Context, partitionID string, key certificate.Key) (certificate.Certificate, error) {
	return repo.getCertificate(ctx,
		"partition_id = ? AND participant_id = ? AND program_name = ? AND title = ?",
		partitionID, key.ParticipantID, key.ProgramName, key.Title,
	)
}

func (repo *certificateRepository) GetCertificateByID(ctx context.Context, partitionID, id string) (certificate.Certificate, error) {
	return repo.getCertificate(ctx, "partition_id = ? AND id = ?", partitionID, id)
}

func (repo *certificateRepository) GetCertificateByVerificationID(ctx context.Context, vid string) (certificate.Certificate, error) {
	return repo.getCertificate(ctx, "verification_id = ?", vid)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (repo *certificateRepository) FilterCertificates(ctx context.Context, partitionID string, filter certificate.QueryFilter) ([]certificate.Certificate, error) {
	q := repo.db.WithContext(ctx).Where("partition_id = ?", partitionID)
	if filter.Search != "" {
		// LIKE is case-insensitive for ASCII in sqlite
		p := "%" + likeEscaper.Replace(filter.Search) + "%"
		q = q.Where(
			`(participant_id LIKE ? ESCAPE '\' OR participant_name LIKE ? ESCAPE '\' OR verification_id LIKE ? ESCAPE '\')`,
			p, p, p,
		)
	}
	if filter.Program != "" {
		q = q.Where("program_name = ?", filter.Program)
	}
	if filter.Title != "" {
		q = q.Where("title = ?", filter.Title)
	}

	var models []certificateModel
	if err := q.Order(core.OrderByClause(filter.Ordering, certificate.DefaultOrdering)).Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "filtering certificates")
	}
	certs := make([]certificate.Certificate, 0, len(models))
	for _, m := range models {
		certs = append(certs, m.toCertificate())
	}
	return certs, nil
}

func (repo *certificateRepository) ListVerificationIDs(ctx context.Context, partitionID string) ([]string, error) {
	vids := make([]string, 0)
	err := repo.db.WithContext(ctx).Model(&certificateModel{}).
		Where("partition_id = ?", partitionID).
		Pluck("verification_id", &vids).Error
	if err != nil {
		return nil, errors.Wrap(err, "listing verification IDs")
	}
	return vids, nil
}

func (repo *certificateRepository) CreateCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	m := newCertificateModel(cert)
	if err := mapError(repo.db.WithContext(ctx).Create(&m).Error, nil); err != nil {
		return certificate.Certificate{}, errors.Wrap(err, "inserting certificate")
	}
	return m.toCertificate(), nil
}

func (repo *certificateRepository) UpdateCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	// only save mutable fields
	res := repo.db.WithContext(ctx).Model(&certificateModel{ID: cert.ID}).
		Select("participant_name", "participant_email", "subtitle", "grade", "issue_date", "document_url", "updated_at").
		Updates(newCertificateModel(cert))
	if res.Error != nil {
		return certificate.Certificate{}, errors.Wrap(res.Error, "updating certificate")
	}
	if res.RowsAffected == 0 {
		return certificate.Certificate{}, certificate.ErrNotFound
	}
	return repo.GetCertificateByID(ctx, cert.PartitionID, cert.ID)
}

func (repo *certificateRepository) IncrementVerificationCount(ctx context.Context, id string) error {
	res := repo.db.WithContext(ctx).Model(&certificateModel{}).
		Where("id = ?", id).
		UpdateColumn("verification_count", gorm.Expr("verification_count + 1"))
	if res.Error != nil {
		return errors.Wrap(res.Error, "incrementing verification count")
	}
	if res.RowsAffected == 0 {
		return certificate.ErrNotFound
	}
	return nil
}

func (repo *certificateRepository) NextSequence(ctx context.Context, partitionID string, floor int) (int, error) {
	var next int
	err := repo.db.WithContext(ctx).Raw(
		`INSERT INTO certificate_sequences (partition_id, last_value) VALUES (?, ? + 1)
		ON CONFLICT (partition_id) DO UPDATE SET last_value = MAX(certificate_sequences.last_value, ?) + 1
		RETURNING last_value`,
		partitionID, floor, floor,
	).Scan(&next).Error
	if err != nil {
		return 0, errors.Wrap(err, "allocating certificate number")
	}
	return next, nil
}

func (repo *certificateRepository) ReleaseSequence(ctx context.Context, partitionID string, value int) (bool, error) {
	res := repo.db.WithContext(ctx).Model(&sequenceModel{}).
		Where("partition_id = ? AND last_value = ?", partitionID, value).
		UpdateColumn("last_value", gorm.Expr("last_value - 1"))
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "releasing certificate number")
	}
	return res.RowsAffected == 1, nil
}
