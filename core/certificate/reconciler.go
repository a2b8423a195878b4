package certificate

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/trezcool/cheti/core"
)

// outcomes
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

const issuedTemplate = "certificate_issued"

type ReconcileOptions struct {
	// DryRun classifies the items without writing anything.
	DryRun bool
	Actor  core.Actor
}

type run struct {
	svc       *Service
	partition Partition
	alloc     *Allocator
	opts      ReconcileOptions
	res       Result
}

// Reconcile creates, updates or skips each item of a batch, in order.
// Item-level failures are reported in Result.Failed; only infrastructure errors are returned.
func (svc *Service) Reconcile(ctx context.Context, partitionID string, items []BatchItem, opts ReconcileOptions) (Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "certificate.Reconcile", trace.WithAttributes(
		attribute.String("partition.id", partitionID),
		attribute.Int("batch.size", len(items)),
		attribute.Bool("batch.dry_run", opts.DryRun),
	))
	defer span.End()

	res, err := svc.reconcile(ctx, partitionID, items, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(
		attribute.Int("batch.created", res.Counts.Created),
		attribute.Int("batch.updated", res.Counts.Updated),
		attribute.Int("batch.skipped", res.Counts.Skipped),
		attribute.Int("batch.failed", res.Counts.Failed),
	)
	if !opts.DryRun {
		svc.metrics.ObserveBatch(time.Since(start))
		svc.metrics.Reconciled(OutcomeCreated, res.Counts.Created)
		svc.metrics.Reconciled(OutcomeUpdated, res.Counts.Updated)
		svc.metrics.Reconciled(OutcomeSkipped, res.Counts.Skipped)
		svc.metrics.Reconciled(OutcomeFailed, res.Counts.Failed)
	}
	return res, nil
}

func (svc *Service) reconcile(ctx context.Context, partitionID string, items []BatchItem, opts ReconcileOptions) (Result, error) {
	if len(items) == 0 {
		return Result{}, ErrEmptyBatch
	}
	partition, err := svc.GetPartition(ctx, partitionID)
	if err != nil {
		return Result{}, err
	}

	release, err := svc.locker.Obtain(ctx, lockKeyPrefix+partition.ID, svc.conf.Certificates.LockTimeout)
	if err != nil {
		return Result{}, errors.Wrap(err, "locking partition")
	}
	defer release()

	vids, err := svc.repo.ListVerificationIDs(ctx, partition.ID)
	if err != nil {
		return Result{}, errors.Wrap(err, "listing verification IDs")
	}

	r := &run{
		svc:       svc,
		partition: partition,
		alloc:     NewAllocator(svc.repo, partition.ID, vids),
		opts:      opts,
		res:       newResult(),
	}
	if opts.DryRun {
		r.alloc = NewAllocator(dryRunSequencer{}, partition.ID, vids)
	}
	r.res.DryRun = opts.DryRun

	for i := range items {
		if err := ctx.Err(); err != nil {
			r.res.finalize()
			return r.res, err
		}
		if err := r.reconcileItem(ctx, i, items[i]); err != nil {
			r.res.finalize()
			return r.res, err
		}
	}
	r.res.finalize()
	svc.log.Info(fmt.Sprintf("partition %s: %s", partition.Code, r.res.Message), opts.Actor)
	return r.res, nil
}

func (r *run) fail(row int, item BatchItem, reason string) {
	r.res.Failed = append(r.res.Failed, FailedItem{Row: row, ParticipantID: item.ParticipantID, Reason: reason})
}

func (r *run) reconcileItem(ctx context.Context, idx int, item BatchItem) error {
	row := item.Row
	if row == 0 {
		row = idx + 1
	}
	if err := item.Validate(r.svc.conf.Certificates.FoldParticipantCase); err != nil {
		r.fail(row, item, validationReason(err))
		return nil
	}

	existing, err := r.svc.repo.GetCertificateByKey(ctx, r.partition.ID, item.Key())
	switch {
	case err == nil:
		r.reconcileExisting(ctx, row, item, existing)
		return nil
	case errors.Cause(err) == ErrNotFound:
		return r.create(ctx, row, item)
	default:
		return errors.Wrapf(err, "looking up row %d", row)
	}
}

func (r *run) create(ctx context.Context, row int, item BatchItem) error {
	seq, err := r.alloc.Next(ctx)
	if err != nil {
		return err
	}

	now := NowFunc().UTC()
	issued := item.issueDate()
	cert := Certificate{
		ID:               uuid.NewString(),
		PartitionID:      r.partition.ID,
		ParticipantID:    item.ParticipantID,
		ParticipantName:  item.ParticipantName,
		ParticipantEmail: item.Email,
		ProgramName:      item.ProgramName,
		ProgramCode:      item.programCode(),
		Title:            item.Title,
		Subtitle:         item.Subtitle,
		Grade:            item.Grade,
		IssueDate:        issued,
		IssuedNumber:     seq,
		VerificationID:   FormatVerificationID(seq, item.programCode(), r.partition.Code, issued),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if r.opts.DryRun {
		r.res.Created = append(r.res.Created, cert.VerificationID)
		return nil
	}

	releaseNumber := func() {
		if err := r.alloc.Release(ctx, seq); err != nil {
			r.svc.log.Error("releasing certificate number", err, r.opts.Actor)
		}
	}

	link, err := r.svc.link(cert, r.partition)
	if err != nil {
		releaseNumber()
		r.fail(row, item, err.Error())
		return nil
	}
	if cert.DocumentURL, err = r.svc.storeDocument(ctx, cert, r.partition, link, item); err != nil {
		releaseNumber()
		r.fail(row, item, errors.Wrap(err, "document").Error())
		return nil
	}

	cert, err = r.svc.repo.CreateCertificate(ctx, cert)
	if err != nil {
		releaseNumber()
		reason := errors.Wrap(err, "saving certificate").Error()
		if errors.Cause(err) == ErrDuplicateKey {
			reason = ErrDuplicateKey.Error()
		}
		r.fail(row, item, reason)
		return nil
	}

	r.res.Created = append(r.res.Created, cert.VerificationID)
	r.svc.notifyIssued(cert, r.partition, link)
	return nil
}

func (r *run) reconcileExisting(ctx context.Context, row int, item BatchItem, existing Certificate) {
	updated := existing
	updated.ParticipantName = item.ParticipantName
	updated.Subtitle = item.Subtitle
	updated.Grade = item.Grade
	if item.Email != "" {
		updated.ParticipantEmail = item.Email
	}
	if !mutableFieldsDiffer(existing, updated) {
		r.res.Skipped = append(r.res.Skipped, existing.VerificationID)
		return
	}
	if item.dateSupplied {
		updated.IssueDate = item.issueDate()
	}
	updated.UpdatedAt = NowFunc().UTC()

	diff := fieldsDiff(existing, updated)
	if r.opts.DryRun {
		r.res.Updated = append(r.res.Updated, existing.VerificationID)
		r.res.Changes[existing.VerificationID] = diff
		return
	}

	link, err := r.svc.link(updated, r.partition)
	if err != nil {
		r.fail(row, item, err.Error())
		return
	}
	docURL, err := r.svc.storeDocument(ctx, updated, r.partition, link, item)
	if err != nil {
		r.fail(row, item, errors.Wrap(err, "document").Error())
		return
	}
	if docURL != "" {
		updated.DocumentURL = docURL
	}

	if _, err = r.svc.repo.UpdateCertificate(ctx, updated); err != nil {
		r.fail(row, item, errors.Wrap(err, "saving certificate").Error())
		return
	}
	r.res.Updated = append(r.res.Updated, existing.VerificationID)
	r.res.Changes[existing.VerificationID] = diff
	r.svc.log.Info(fmt.Sprintf("certificate %s updated:\n%s", existing.VerificationID, diff), r.opts.Actor)
}

// storeDocument stores the item's own document, or a generated one, and returns its URL.
// An empty URL means there was nothing to store.
func (svc *Service) storeDocument(ctx context.Context, cert Certificate, partition Partition, link string, item BatchItem) (string, error) {
	content, err := item.document()
	if err != nil {
		return "", err
	}
	if content == nil {
		if svc.generator == nil {
			return "", nil
		}
		if content, err = svc.generator.Generate(ctx, Document{Certificate: cert, Partition: partition, Link: link}); err != nil {
			return "", errors.Wrap(err, "generating")
		}
	}
	if svc.store == nil {
		return "", errors.New("no document store configured")
	}
	url, err := svc.store.Put(ctx, ObjectName(partition.Code, cert.VerificationID), content, documentMIMEType)
	if err != nil {
		return "", errors.Wrap(err, "storing")
	}
	return url, nil
}

func (svc *Service) notifyIssued(cert Certificate, partition Partition, link string) {
	if !svc.conf.Certificates.NotifyParticipants || svc.mailSvc == nil || cert.ParticipantEmail == "" {
		return
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: cert.ParticipantName, Address: cert.ParticipantEmail}},
		Subject:      fmt.Sprintf("Your certificate: %s", cert.Title),
		TemplateName: issuedTemplate,
		TemplateData: map[string]string{
			"ParticipantName": cert.ParticipantName,
			"Title":           cert.Title,
			"ProgramName":     cert.ProgramName,
			"PartitionName":   partition.Name,
			"VerificationID":  cert.VerificationID,
			"Link":            link,
			"DocumentURL":     cert.DocumentURL,
		},
	}
	svc.mailSvc.SendMessages(msg)
}

func mutableFieldsDiffer(a, b Certificate) bool {
	return a.ParticipantName != b.ParticipantName ||
		a.Subtitle != b.Subtitle ||
		a.Grade != b.Grade ||
		a.ParticipantEmail != b.ParticipantEmail
}

func auditLines(c Certificate) []string {
	return difflib.SplitLines(strings.Join([]string{
		"participant_name: " + c.ParticipantName,
		"subtitle: " + c.Subtitle,
		"grade: " + c.Grade,
		"participant_email: " + c.ParticipantEmail,
		"issue_date: " + c.IssueDate.Format(core.DateLayout),
	}, "\n") + "\n")
}

// fieldsDiff returns a unified diff of the mutable fields of two versions of a certificate.
func fieldsDiff(before, after Certificate) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        auditLines(before),
		B:        auditLines(after),
		FromFile: before.VerificationID,
		ToFile:   after.VerificationID,
		Context:  0,
	})
	if err != nil {
		return ""
	}
	return diff
}

// dryRunSequencer predicts numbers from the scan floor without touching storage.
type dryRunSequencer struct{}

func (dryRunSequencer) NextSequence(_ context.Context, _ string, floor int) (int, error) {
	return floor + 1, nil
}

func (dryRunSequencer) ReleaseSequence(context.Context, string, int) (bool, error) {
	return false, nil
}
