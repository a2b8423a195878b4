package certificate

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/trezcool/cheti/core"
)

var (
	// errors
	ErrNotFound          = errors.New("certificate not found")
	ErrPartitionNotFound = errors.New("partition not found")
	ErrDuplicateKey      = errors.New("a record with this identity already exists")
	ErrEmptyBatch        = errors.New("the batch has no items")

	tracer = otel.Tracer("github.com/trezcool/cheti/core/certificate")
)

const (
	partitionCacheTTL = 5 * time.Minute
	lockKeyPrefix     = "cheti:certificates:batch:"
	documentMIMEType  = "application/pdf"
)

type (
	Repository interface {
		Sequencer

		CreatePartition(ctx context.Context, p Partition) (Partition, error)
		GetPartitionByID(ctx context.Context, id string) (Partition, error)
		GetPartitionByCode(ctx context.Context, code string) (Partition, error)
		QueryPartitions(ctx context.Context) ([]Partition, error)

		// GetCertificateByKey does an exact match on the composite key within a partition.
		GetCertificateByKey(ctx context.Context, partitionID string, key Key) (Certificate, error)
		GetCertificateByID(ctx context.Context, partitionID, id string) (Certificate, error)
		GetCertificateByVerificationID(ctx context.Context, vid string) (Certificate, error)
		// FilterCertificates applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on participant ID, participant name or verification ID.
		FilterCertificates(ctx context.Context, partitionID string, filter QueryFilter) ([]Certificate, error)
		ListVerificationIDs(ctx context.Context, partitionID string) ([]string, error)
		CreateCertificate(ctx context.Context, cert Certificate) (Certificate, error)
		// UpdateCertificate persists the mutable fields only.
		UpdateCertificate(ctx context.Context, cert Certificate) (Certificate, error)
		IncrementVerificationCount(ctx context.Context, id string) error
	}

	// Document is what a DocumentGenerator renders.
	Document struct {
		Certificate Certificate
		Partition   Partition
		Link        string
	}

	// DocumentGenerator renders a certificate into a PDF.
	DocumentGenerator interface {
		Generate(ctx context.Context, doc Document) ([]byte, error)
	}

	// DocumentStore persists generated documents and returns their public URL.
	DocumentStore interface {
		Put(ctx context.Context, name string, content []byte, contentType string) (string, error)
	}

	// Locker serializes reconciliation runs of a partition.
	Locker interface {
		Obtain(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
	}

	// Metrics records reconciliation and verification outcomes.
	Metrics interface {
		Reconciled(outcome string, n int)
		Verified(result string)
		ObserveBatch(d time.Duration)
	}

	// Deps are the collaborators of a Service. Generator, Mail and Metrics are optional.
	Deps struct {
		Conf      *core.Config
		Repo      Repository
		Signer    *Signer
		Locker    Locker
		Store     DocumentStore
		Generator DocumentGenerator
		Mail      core.EmailService
		Metrics   Metrics
		Log       core.Logger
	}

	Service struct {
		conf       *core.Config
		repo       Repository
		signer     *Signer
		locker     Locker
		store      DocumentStore
		generator  DocumentGenerator
		mailSvc    core.EmailService
		metrics    Metrics
		log        core.Logger
		partitions *cache.Cache
	}
)

func NewService(deps Deps) *Service {
	svc := &Service{
		conf:       deps.Conf,
		repo:       deps.Repo,
		signer:     deps.Signer,
		locker:     deps.Locker,
		store:      deps.Store,
		generator:  deps.Generator,
		mailSvc:    deps.Mail,
		metrics:    deps.Metrics,
		log:        deps.Log,
		partitions: cache.New(partitionCacheTTL, 2*partitionCacheTTL),
	}
	if svc.metrics == nil {
		svc.metrics = nopMetrics{}
	}
	return svc
}

func (svc *Service) CreatePartition(ctx context.Context, np NewPartition) (Partition, error) {
	if err := np.Validate(); err != nil {
		return Partition{}, err
	}
	p, err := svc.repo.CreatePartition(ctx, Partition{
		ID:        uuid.NewString(),
		Code:      np.Code,
		Name:      np.Name,
		CreatedAt: NowFunc().UTC(),
	})
	if err != nil {
		if errors.Cause(err) == ErrDuplicateKey {
			return Partition{}, core.NewValidationError(
				nil, core.FieldError{Field: "code", Error: "a partition with this code already exists"},
			)
		}
		return Partition{}, err
	}
	return p, nil
}

func (svc *Service) QueryPartitions(ctx context.Context) ([]Partition, error) {
	return svc.repo.QueryPartitions(ctx)
}

// GetPartition returns the partition with the given ID, from cache when possible.
func (svc *Service) GetPartition(ctx context.Context, id string) (Partition, error) {
	if p, ok := svc.partitions.Get("id:" + id); ok {
		return p.(Partition), nil
	}
	p, err := svc.repo.GetPartitionByID(ctx, id)
	if err != nil {
		return Partition{}, err
	}
	svc.cachePartition(p)
	return p, nil
}

func (svc *Service) GetPartitionByCode(ctx context.Context, code string) (Partition, error) {
	code = strings.ToUpper(core.CleanString(code))
	if p, ok := svc.partitions.Get("code:" + code); ok {
		return p.(Partition), nil
	}
	p, err := svc.repo.GetPartitionByCode(ctx, code)
	if err != nil {
		return Partition{}, err
	}
	svc.cachePartition(p)
	return p, nil
}

func (svc *Service) cachePartition(p Partition) {
	svc.partitions.Set("id:"+p.ID, p, cache.DefaultExpiration)
	svc.partitions.Set("code:"+p.Code, p, cache.DefaultExpiration)
}

func (svc *Service) Filter(ctx context.Context, partitionID string, filter QueryFilter) ([]Certificate, error) {
	filter.Clean()
	return svc.repo.FilterCertificates(ctx, partitionID, filter)
}

func (svc *Service) GetByID(ctx context.Context, partitionID, id string) (Certificate, error) {
	return svc.repo.GetCertificateByID(ctx, partitionID, id)
}

// Link returns the signed verification link of a stored certificate.
func (svc *Service) Link(ctx context.Context, partitionID, id string) (string, error) {
	cert, err := svc.repo.GetCertificateByID(ctx, partitionID, id)
	if err != nil {
		return "", err
	}
	partition, err := svc.GetPartition(ctx, partitionID)
	if err != nil {
		return "", err
	}
	return svc.link(cert, partition)
}

func (svc *Service) link(cert Certificate, partition Partition) (string, error) {
	data, sig, err := svc.signer.Sign(NewPayload(cert, partition))
	if err != nil {
		return "", errors.Wrap(err, "signing certificate")
	}
	return svc.conf.VerifyBaseURL + "/verify/" + data + "/" + sig, nil
}

// ObjectName returns the storage name of a certificate document.
func ObjectName(partitionCode, vid string) string {
	return "certificates/" + partitionCode + "/" + strings.ReplaceAll(vid, "/", "-") + ".pdf"
}

type nopMetrics struct{}

func (nopMetrics) Reconciled(string, int)     {}
func (nopMetrics) Verified(string)            {}
func (nopMetrics) ObserveBatch(time.Duration) {}
