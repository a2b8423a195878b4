package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
)

type certificateRepository struct {
	db *certificateTables
}

func NewCertificateRepository(db *DB) certificate.Repository {
	return &certificateRepository{db: db.certificate}
}

func (repo *certificateRepository) CreatePartition(_ context.Context, p certificate.Partition) (certificate.Partition, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.partitions {
		if existing.Code == p.Code {
			return certificate.Partition{}, certificate.ErrDuplicateKey
		}
	}
	repo.db.partitions[p.ID] = &p
	return p, nil
}

func (repo *certificateRepository) GetPartitionByID(_ context.Context, id string) (certificate.Partition, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.partitions[id]; ok {
		return *p, nil
	}
	return certificate.Partition{}, certificate.ErrPartitionNotFound
}

func (repo *certificateRepository) GetPartitionByCode(_ context.Context, code string) (certificate.Partition, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, p := range repo.db.partitions {
		if p.Code == code {
			return *p, nil
		}
	}
	return certificate.Partition{}, certificate.ErrPartitionNotFound
}

func (repo *certificateRepository) QueryPartitions(context.Context) ([]certificate.Partition, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	partitions := make([]certificate.Partition, 0, len(repo.db.partitions))
	for _, p := range repo.db.partitions {
		partitions = append(partitions, *p)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i].Code < partitions[j].Code })
	return partitions, nil
}

func (repo *certificateRepository) query(partitionID string) []certificate.Certificate {
	certs := make([]certificate.Certificate, 0, len(repo.db.certificates))
	for _, c := range repo.db.certificates {
		if partitionID == "" || c.PartitionID == partitionID {
			certs = append(certs, *c)
		}
	}
	return certs
}

func (repo *certificateRepository) GetCertificateByKey(_ context.Context, partitionID string, key certificate.Key) (certificate.Certificate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, c := range repo.query(partitionID) {
		if c.Key() == key {
			return c, nil
		}
	}
	return certificate.Certificate{}, certificate.ErrNotFound
}

func (repo *certificateRepository) GetCertificateByID(_ context.Context, partitionID, id string) (certificate.Certificate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.certificates[id]; ok && c.PartitionID == partitionID {
		return *c, nil
	}
	return certificate.Certificate{}, certificate.ErrNotFound
}

func (repo *certificateRepository) GetCertificateByVerificationID(_ context.Context, vid string) (certificate.Certificate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, c := range repo.query("") {
		if c.VerificationID == vid {
			return c, nil
		}
	}
	return certificate.Certificate{}, certificate.ErrNotFound
}

func (repo *certificateRepository) FilterCertificates(_ context.Context, partitionID string, filter certificate.QueryFilter) ([]certificate.Certificate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	certs := make([]certificate.Certificate, 0)
	for _, c := range repo.query(partitionID) {
		if search != "" &&
			!strings.Contains(strings.ToLower(c.ParticipantID), search) &&
			!strings.Contains(strings.ToLower(c.ParticipantName), search) &&
			!strings.Contains(strings.ToLower(c.VerificationID), search) {
			continue
		}
		if filter.Program != "" && c.ProgramName != filter.Program {
			continue
		}
		if filter.Title != "" && c.Title != filter.Title {
			continue
		}
		certs = append(certs, c)
	}
	sortCertificates(certs, filter.Ordering)
	return certs, nil
}

func (repo *certificateRepository) ListVerificationIDs(_ context.Context, partitionID string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	vids := make([]string, 0)
	for _, c := range repo.query(partitionID) {
		vids = append(vids, c.VerificationID)
	}
	return vids, nil
}

func (repo *certificateRepository) CreateCertificate(_ context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, c := range repo.db.certificates {
		if c.VerificationID == cert.VerificationID || (c.PartitionID == cert.PartitionID && c.Key() == cert.Key()) {
			return certificate.Certificate{}, certificate.ErrDuplicateKey
		}
	}
	repo.db.certificates[cert.ID] = &cert
	return cert, nil
}

func (repo *certificateRepository) UpdateCertificate(_ context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// only save mutable fields
	orig, ok := repo.db.certificates[cert.ID]
	if !ok {
		return certificate.Certificate{}, certificate.ErrNotFound
	}
	orig.ParticipantName = cert.ParticipantName
	orig.ParticipantEmail = cert.ParticipantEmail
	orig.Subtitle = cert.Subtitle
	orig.Grade = cert.Grade
	orig.IssueDate = cert.IssueDate
	orig.DocumentURL = cert.DocumentURL
	orig.UpdatedAt = cert.UpdatedAt
	return *orig, nil
}

func (repo *certificateRepository) IncrementVerificationCount(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c, ok := repo.db.certificates[id]
	if !ok {
		return certificate.ErrNotFound
	}
	c.VerificationCount++
	return nil
}

func (repo *certificateRepository) NextSequence(_ context.Context, partitionID string, floor int) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	last := repo.db.sequences[partitionID]
	if floor > last {
		last = floor
	}
	last++
	repo.db.sequences[partitionID] = last
	return last, nil
}

func (repo *certificateRepository) ReleaseSequence(_ context.Context, partitionID string, value int) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.db.sequences[partitionID] != value {
		return false, nil
	}
	repo.db.sequences[partitionID] = value - 1
	return true, nil
}

func sortCertificates(certs []certificate.Certificate, orderings []core.DBOrdering) {
	if len(orderings) == 0 {
		orderings = []core.DBOrdering{{Field: "issued_number", Ascending: true}}
	}
	sort.SliceStable(certs, func(i, j int) bool {
		for _, ord := range orderings {
			cmp := compareField(certs[i], certs[j], ord.Field)
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
}

func compareField(a, b certificate.Certificate, field string) int {
	switch field {
	case "issued_number":
		return a.IssuedNumber - b.IssuedNumber
	case "issue_date":
		return a.IssueDate.Compare(b.IssueDate)
	case "participant_id":
		return strings.Compare(a.ParticipantID, b.ParticipantID)
	case "participant_name":
		return strings.Compare(a.ParticipantName, b.ParticipantName)
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	}
	return 0
}
