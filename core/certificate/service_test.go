package certificate_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
	"github.com/trezcool/cheti/services/email"
	"github.com/trezcool/cheti/services/lock"
	"github.com/trezcool/cheti/storage/database/inmem"
	"github.com/trezcool/cheti/tests"
)

type fixture struct {
	conf      *core.Config
	repo      certificate.Repository
	store     *testutil.DocumentStore
	generator *testutil.DocumentGenerator
	logger    *testutil.Logger
	svc       *certificate.Service
	partition certificate.Partition
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conf := testutil.NewConfig()
	f := &fixture{
		conf:      conf,
		repo:      inmemdb.NewCertificateRepository(inmemdb.Open()),
		store:     testutil.NewDocumentStore(),
		generator: &testutil.DocumentGenerator{FailFor: make(map[string]bool)},
		logger:    new(testutil.Logger),
	}
	signer, err := certificate.NewSigner(conf.SigningSecret)
	require.NoError(t, err)
	f.svc = certificate.NewService(certificate.Deps{
		Conf:      conf,
		Repo:      f.repo,
		Signer:    signer,
		Locker:    lock.NewLocalLocker(),
		Store:     f.store,
		Generator: f.generator,
		Mail:      emailsvc.NewConsoleServiceMock(conf, f.logger),
		Log:       f.logger,
	})
	f.partition = testutil.CreatePartition(t, f.repo, "FT", "Faculty of Technology")
	return f
}

func (f *fixture) reconcile(t *testing.T, items ...certificate.BatchItem) certificate.Result {
	t.Helper()
	res, err := f.svc.Reconcile(context.Background(), f.partition.ID, items, certificate.ReconcileOptions{})
	require.NoError(t, err)
	return res
}

func (f *fixture) get(t *testing.T, vid string) certificate.Certificate {
	t.Helper()
	cert, err := f.repo.GetCertificateByVerificationID(context.Background(), vid)
	require.NoError(t, err)
	return cert
}

func item(participantID, program, title string) certificate.BatchItem {
	return certificate.BatchItem{
		ParticipantID:   participantID,
		ParticipantName: "Participant " + participantID,
		ProgramName:     program,
		ProgramCode:     "BE",
		Title:           title,
		IssueDate:       "2025-10-03",
		Grade:           "Pass",
	}
}

func TestReconcile_Creates(t *testing.T) {
	f := setup(t)
	res := f.reconcile(t,
		item("A001", "Civil Engineering", "Bachelor of Engineering"),
		item("A002", "Civil Engineering", "Bachelor of Engineering"),
	)

	assert.Equal(t, []string{"001/BE/FT/X/2025", "002/BE/FT/X/2025"}, res.Created)
	assert.Equal(t, certificate.Counts{Created: 2}, res.Counts)
	assert.Equal(t, "2 created, 0 updated, 0 skipped", res.Message)

	cert := f.get(t, "001/BE/FT/X/2025")
	assert.Equal(t, 1, cert.IssuedNumber)
	assert.Equal(t, "A001", cert.ParticipantID)
	assert.Equal(t, f.partition.ID, cert.PartitionID)
	assert.Equal(t, "https://cheti.test/media/certificates/FT/001-BE-FT-X-2025.pdf", cert.DocumentURL)

	content, ok := f.store.Get("certificates/FT/001-BE-FT-X-2025.pdf")
	require.True(t, ok)
	assert.Contains(t, string(content), "https://cheti.test/verify/")
}

func TestReconcile_IdempotentReplay(t *testing.T) {
	f := setup(t)
	batch := []certificate.BatchItem{
		item("A001", "Civil Engineering", "Bachelor of Engineering"),
		item("A002", "Civil Engineering", "Bachelor of Engineering"),
		item("A003", "Law", "Bachelor of Laws"),
	}
	first := f.reconcile(t, batch...)
	require.Len(t, first.Created, 3)

	replay := f.reconcile(t, batch...)
	assert.Empty(t, replay.Created)
	assert.Empty(t, replay.Updated)
	assert.Empty(t, replay.Failed)
	assert.Equal(t, first.Created, replay.Skipped)
	assert.Equal(t, certificate.Counts{Skipped: 3}, replay.Counts)
}

func TestReconcile_CompositeKeyIsolation(t *testing.T) {
	f := setup(t)
	law := testutil.CreatePartition(t, f.repo, "LAW", "School of Law")

	res := f.reconcile(t,
		item("A001", "Civil Engineering", "Bachelor of Engineering"),
		item("A001", "Civil Engineering", "Certificate of Merit"),
		item("A001", "Mechanical Engineering", "Bachelor of Engineering"),
	)
	assert.Len(t, res.Created, 3)

	// same key in another partition is another certificate
	lawRes, err := f.svc.Reconcile(context.Background(), law.ID, []certificate.BatchItem{
		item("A001", "Civil Engineering", "Bachelor of Engineering"),
	}, certificate.ReconcileOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"001/BE/LAW/X/2025"}, lawRes.Created)

	// the original records are untouched
	for _, vid := range res.Created {
		cert := f.get(t, vid)
		assert.Equal(t, "Participant A001", cert.ParticipantName)
		assert.Equal(t, f.partition.ID, cert.PartitionID)
	}
}

func TestReconcile_NumberingFromMaxExisting(t *testing.T) {
	f := setup(t)
	for i, vid := range []string{"005/BE/FT/I/2024", "012/BE/FT/II/2024", "legacy-id"} {
		testutil.CreateCertificate(t, f.repo, certificate.Certificate{
			PartitionID:     f.partition.ID,
			ParticipantID:   "OLD" + vid,
			ParticipantName: "Old",
			ProgramName:     "Civil Engineering",
			ProgramCode:     "BE",
			Title:           "Bachelor of Engineering",
			IssueDate:       testutil.Date(2024, time.January, 10),
			IssuedNumber:    i + 100, // stored numbers are not used for numbering
			VerificationID:  vid,
		})
	}

	res := f.reconcile(t,
		item("A001", "Civil Engineering", "Bachelor of Engineering"),
		item("A002", "Civil Engineering", "Bachelor of Engineering"),
	)
	assert.Equal(t, []string{"013/BE/FT/X/2025", "014/BE/FT/X/2025"}, res.Created)
	assert.Equal(t, 14, f.get(t, "014/BE/FT/X/2025").IssuedNumber)

	// later runs keep increasing
	res = f.reconcile(t, item("A003", "Civil Engineering", "Bachelor of Engineering"))
	assert.Equal(t, []string{"015/BE/FT/X/2025"}, res.Created)
}

func TestReconcile_UpdatePreservesIdentity(t *testing.T) {
	f := setup(t)
	created := f.reconcile(t, item("A001", "Civil Engineering", "Bachelor of Engineering"))
	vid := created.Created[0]
	before := f.get(t, vid)

	certificate.NowFunc = func() time.Time { return time.Now().Add(time.Hour) }
	defer func() { certificate.NowFunc = time.Now }()

	changed := item("A001", "Civil Engineering", "Bachelor of Engineering")
	changed.ParticipantName = "Amani Juma"
	changed.Grade = "First Class"
	changed.ProgramCode = "CE" // identity is never re-derived
	res := f.reconcile(t, changed)

	assert.Equal(t, []string{vid}, res.Updated)
	assert.Empty(t, res.Created)
	require.Contains(t, res.Changes, vid)
	assert.Contains(t, res.Changes[vid], "-participant_name: Participant A001")
	assert.Contains(t, res.Changes[vid], "+participant_name: Amani Juma")
	assert.Contains(t, res.Changes[vid], "+grade: First Class")

	after := f.get(t, vid)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.IssuedNumber, after.IssuedNumber)
	assert.Equal(t, before.VerificationID, after.VerificationID)
	assert.Equal(t, before.ProgramCode, after.ProgramCode)
	assert.Equal(t, before.Key(), after.Key())
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.Equal(t, "Amani Juma", after.ParticipantName)
	assert.Equal(t, "First Class", after.Grade)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	// the document was regenerated with the same verification ID
	require.Len(t, f.generator.Calls, 2)
	assert.Equal(t, vid, f.generator.Calls[1].Certificate.VerificationID)
	assert.Equal(t, "Amani Juma", f.generator.Calls[1].Certificate.ParticipantName)
}

func TestReconcile_UpdateKeepsIssueDate(t *testing.T) {
	f := setup(t)
	vid := f.reconcile(t, item("A001", "Civil Engineering", "Bachelor of Engineering")).Created[0]

	certificate.NowFunc = func() time.Time { return time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC) }
	defer func() { certificate.NowFunc = time.Now }()

	tests := []struct {
		name      string
		issueDate string
		wantDate  time.Time
	}{
		{name: "no issue date", issueDate: "", wantDate: testutil.Date(2025, time.October, 3)},
		{name: "blank issue date", issueDate: "   ", wantDate: testutil.Date(2025, time.October, 3)},
		{name: "new issue date", issueDate: "2025-10-20", wantDate: testutil.Date(2025, time.October, 20)},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed := item("A001", "Civil Engineering", "Bachelor of Engineering")
			changed.ParticipantName = fmt.Sprintf("Amani Juma %d", i)
			changed.IssueDate = tt.issueDate
			res := f.reconcile(t, changed)
			require.Equal(t, []string{vid}, res.Updated)

			after := f.get(t, vid)
			assert.Equal(t, tt.wantDate, after.IssueDate)
			assert.Equal(t, vid, after.VerificationID)

			// links signed after the update carry the kept date
			link, err := f.svc.Link(context.Background(), f.partition.ID, after.ID)
			require.NoError(t, err)
			data, sig := splitLink(t, link)
			v, err := f.svc.Verify(context.Background(), data, sig)
			require.NoError(t, err)
			require.True(t, v.Valid)
			assert.Equal(t, tt.wantDate.Format("2006-01-02"), v.Certificate.IssueDate)
		})
	}

	// creations still default to today
	fresh := item("A002", "Civil Engineering", "Bachelor of Engineering")
	fresh.IssueDate = ""
	created := f.reconcile(t, fresh).Created
	require.Len(t, created, 1)
	assert.Equal(t, "002/BE/FT/X/2026", created[0])
	assert.Equal(t, testutil.Date(2026, time.October, 16), f.get(t, created[0]).IssueDate)
}

func TestReconcile_SkipVersusUpdate(t *testing.T) {
	f := setup(t)
	base := item("A001", "Civil Engineering", "Bachelor of Engineering")
	vid := f.reconcile(t, base).Created[0]
	stored := f.get(t, vid)

	certificate.NowFunc = func() time.Time { return time.Now().Add(time.Hour) }
	defer func() { certificate.NowFunc = time.Now }()

	trailing := base
	trailing.ParticipantID = "A001 "
	trailing.ParticipantName = "  Participant A001"
	newDate := base
	newDate.IssueDate = "2025-11-20" // the issue date alone is not a change
	withDoc := base
	withDoc.Document = base64.StdEncoding.EncodeToString([]byte("%PDF-1.3 supplied"))
	newSubtitle := base
	newSubtitle.Subtitle = "With Honours"

	tests := []struct {
		name        string
		item        certificate.BatchItem
		wantOutcome string
	}{
		{name: "identical", item: base, wantOutcome: certificate.OutcomeSkipped},
		{name: "trailing whitespace", item: trailing, wantOutcome: certificate.OutcomeSkipped},
		{name: "issue date only", item: newDate, wantOutcome: certificate.OutcomeSkipped},
		{name: "document only", item: withDoc, wantOutcome: certificate.OutcomeSkipped},
		{name: "subtitle", item: newSubtitle, wantOutcome: certificate.OutcomeUpdated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.get(t, vid)
			res := f.reconcile(t, tt.item)
			after := f.get(t, vid)

			switch tt.wantOutcome {
			case certificate.OutcomeSkipped:
				assert.Equal(t, []string{vid}, res.Skipped)
				assert.Empty(t, res.Updated)
				assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
				assert.Equal(t, stored.UpdatedAt, after.UpdatedAt)
			case certificate.OutcomeUpdated:
				assert.Equal(t, []string{vid}, res.Updated)
				assert.Empty(t, res.Skipped)
				assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
			}
		})
	}
}

func TestReconcile_SuppliedDocument(t *testing.T) {
	f := setup(t)
	it := item("A001", "Civil Engineering", "Bachelor of Engineering")
	it.Document = base64.StdEncoding.EncodeToString([]byte("%PDF-1.3 supplied"))
	vid := f.reconcile(t, it).Created[0]

	content, ok := f.store.Get(certificate.ObjectName("FT", vid))
	require.True(t, ok)
	assert.Equal(t, "%PDF-1.3 supplied", string(content))
	assert.Empty(t, f.generator.Calls)
}

func TestReconcile_Failures(t *testing.T) {
	f := setup(t)
	f.generator.FailFor["A002"] = true

	invalid := item("", "Civil Engineering", "Bachelor of Engineering")
	invalid.IssueDate = "03/10/2025"
	multiline := item("A004", "Civil Engineering", "Bachelor of\nEngineering")

	res := f.reconcile(t,
		item("A001", "Civil Engineering", "Bachelor of Engineering"),
		item("A002", "Civil Engineering", "Bachelor of Engineering"),
		invalid,
		multiline,
		item("A005", "Civil Engineering", "Bachelor of Engineering"),
	)

	// the number burned by the failed item is given back
	assert.Equal(t, []string{"001/BE/FT/X/2025", "002/BE/FT/X/2025"}, res.Created)
	assert.Equal(t, "A005", f.get(t, "002/BE/FT/X/2025").ParticipantID)
	assert.Equal(t, "2 created, 0 updated, 0 skipped, 3 failed", res.Message)

	require.Len(t, res.Failed, 3)
	assert.Equal(t, 2, res.Failed[0].Row)
	assert.Equal(t, "A002", res.Failed[0].ParticipantID)
	assert.Contains(t, res.Failed[0].Reason, "template error")

	assert.Equal(t, 3, res.Failed[1].Row)
	assert.Equal(t,
		"issue_date: issue_date must be a date formatted as YYYY-MM-DD; participant_id: this field is required",
		res.Failed[1].Reason,
	)
	assert.Equal(t, 4, res.Failed[2].Row)
	assert.Equal(t, "title: title must not contain control characters", res.Failed[2].Reason)
}

func TestReconcile_StoreFailure(t *testing.T) {
	f := setup(t)
	f.store.Fail = true
	res := f.reconcile(t, item("A001", "Civil Engineering", "Bachelor of Engineering"))
	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed[0].Reason, "store unavailable")

	f.store.Fail = false
	res = f.reconcile(t, item("A001", "Civil Engineering", "Bachelor of Engineering"))
	assert.Equal(t, []string{"001/BE/FT/X/2025"}, res.Created)
}

func TestReconcile_RowNumbers(t *testing.T) {
	f := setup(t)
	bad := item("A001", "Civil Engineering", "")
	bad.Row = 42
	res := f.reconcile(t, bad)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 42, res.Failed[0].Row)
}

func TestReconcile_Errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Reconcile(ctx, f.partition.ID, nil, certificate.ReconcileOptions{})
	assert.Equal(t, certificate.ErrEmptyBatch, errors.Cause(err))

	_, err = f.svc.Reconcile(ctx, "unknown", []certificate.BatchItem{item("A001", "P", "T")}, certificate.ReconcileOptions{})
	assert.Equal(t, certificate.ErrPartitionNotFound, errors.Cause(err))
}

func TestReconcile_DryRun(t *testing.T) {
	f := setup(t)
	vid := f.reconcile(t, item("A001", "Civil Engineering", "Bachelor of Engineering")).Created[0]

	changed := item("A001", "Civil Engineering", "Bachelor of Engineering")
	changed.Grade = "Distinction"
	res, err := f.svc.Reconcile(context.Background(), f.partition.ID, []certificate.BatchItem{
		changed,
		item("A002", "Civil Engineering", "Bachelor of Engineering"),
	}, certificate.ReconcileOptions{DryRun: true})
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Equal(t, []string{"002/BE/FT/X/2025"}, res.Created)
	assert.Equal(t, []string{vid}, res.Updated)
	assert.Contains(t, res.Changes[vid], "+grade: Distinction")

	// nothing was written
	assert.Equal(t, "Pass", f.get(t, vid).Grade)
	_, err = f.repo.GetCertificateByVerificationID(context.Background(), "002/BE/FT/X/2025")
	assert.Equal(t, certificate.ErrNotFound, errors.Cause(err))

	res = f.reconcile(t, item("A002", "Civil Engineering", "Bachelor of Engineering"))
	assert.Equal(t, []string{"002/BE/FT/X/2025"}, res.Created)
}

func TestReconcile_FoldParticipantCase(t *testing.T) {
	tests := []struct {
		name        string
		fold        bool
		wantCreated int
		wantSkipped int
	}{
		{name: "case sensitive", fold: false, wantCreated: 1},
		{name: "folded", fold: true, wantSkipped: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			f.conf.Certificates.FoldParticipantCase = tt.fold
			f.reconcile(t, item("A001", "Civil Engineering", "Bachelor of Engineering"))

			res := f.reconcile(t, item("a001", "Civil Engineering", "Bachelor of Engineering"))
			assert.Len(t, res.Created, tt.wantCreated)
			assert.Len(t, res.Skipped, tt.wantSkipped)
		})
	}
}

func TestReconcile_NotifiesParticipants(t *testing.T) {
	emailsvc.ResetSentMessages()
	f := setup(t)
	f.conf.Certificates.NotifyParticipants = true

	withEmail := item("A001", "Civil Engineering", "Bachelor of Engineering")
	withEmail.Email = " Amani@Uni.test "
	f.reconcile(t, withEmail, item("A002", "Civil Engineering", "Bachelor of Engineering"))

	sent := emailsvc.SentMessagesCopy()
	require.Len(t, sent, 1)
	assert.Equal(t, "amani@uni.test", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "001/BE/FT/X/2025")
	assert.Contains(t, sent[0].TextContent, "https://cheti.test/verify/")
}

func TestService_Link(t *testing.T) {
	f := setup(t)
	vid := f.reconcile(t, item("A001", "Civil Engineering", "Bachelor of Engineering")).Created[0]
	cert := f.get(t, vid)

	link, err := f.svc.Link(context.Background(), f.partition.ID, cert.ID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link, "https://cheti.test/verify/"))

	segs := strings.Split(strings.TrimPrefix(link, "https://cheti.test/verify/"), "/")
	require.Len(t, segs, 2)
	v, err := f.svc.Verify(context.Background(), segs[0], segs[1])
	require.NoError(t, err)
	assert.True(t, v.Valid)

	_, err = f.svc.Link(context.Background(), "other", cert.ID)
	assert.Equal(t, certificate.ErrNotFound, errors.Cause(err))
}

func TestService_CreatePartition(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.svc.CreatePartition(ctx, certificate.NewPartition{Code: " law ", Name: " School of Law "})
	require.NoError(t, err)
	assert.Equal(t, "LAW", p.Code)
	assert.Equal(t, "School of Law", p.Name)

	got, err := f.svc.GetPartitionByCode(ctx, "law")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = f.svc.CreatePartition(ctx, certificate.NewPartition{Code: "LAW", Name: "Again"})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "code", vErr.Fields[0].Field)

	_, err = f.svc.CreatePartition(ctx, certificate.NewPartition{Code: "L-1", Name: "Bad"})
	assert.Error(t, err)
}
