package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
)

// RunRepositoryTests checks the behaviour every certificate.Repository implementation must have.
// newRepo must return an empty repository.
func RunRepositoryTests(t *testing.T, newRepo func(t *testing.T) certificate.Repository) {
	t.Run("partitions", func(t *testing.T) { testPartitions(t, newRepo(t)) })
	t.Run("certificates", func(t *testing.T) { testCertificates(t, newRepo(t)) })
	t.Run("filter", func(t *testing.T) { testFilter(t, newRepo(t)) })
	t.Run("sequences", func(t *testing.T) { testSequences(t, newRepo(t)) })
}

var repoTestTime = time.Date(2025, time.October, 3, 8, 30, 0, 0, time.UTC)

func testPartitions(t *testing.T, repo certificate.Repository) {
	ctx := context.Background()
	law := certificate.Partition{ID: "partition-LAW", Code: "LAW", Name: "School of Law", CreatedAt: repoTestTime}
	ft := certificate.Partition{ID: "partition-FT", Code: "FT", Name: "Faculty of Technology", CreatedAt: repoTestTime}

	for _, p := range []certificate.Partition{law, ft} {
		got, err := repo.CreatePartition(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := repo.CreatePartition(ctx, certificate.Partition{ID: "other", Code: "FT", Name: "Duplicate", CreatedAt: repoTestTime})
	assert.Equal(t, certificate.ErrDuplicateKey, errors.Cause(err))

	got, err := repo.GetPartitionByID(ctx, ft.ID)
	require.NoError(t, err)
	assert.Equal(t, ft, got)

	got, err = repo.GetPartitionByCode(ctx, "LAW")
	require.NoError(t, err)
	assert.Equal(t, law, got)

	_, err = repo.GetPartitionByID(ctx, "unknown")
	assert.Equal(t, certificate.ErrPartitionNotFound, errors.Cause(err))
	_, err = repo.GetPartitionByCode(ctx, "law")
	assert.Equal(t, certificate.ErrPartitionNotFound, errors.Cause(err))

	all, err := repo.QueryPartitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []certificate.Partition{ft, law}, all)
}

func repoTestCertificate(partitionID, participantID string, n int) certificate.Certificate {
	return certificate.Certificate{
		ID:              partitionID + "-" + participantID,
		PartitionID:     partitionID,
		ParticipantID:   participantID,
		ParticipantName: "Participant " + participantID,
		ProgramName:     "Civil Engineering",
		ProgramCode:     "BE",
		Title:           "Bachelor of Engineering",
		IssueDate:       Date(2025, time.October, 3),
		IssuedNumber:    n,
		VerificationID:  certificate.FormatVerificationID(n, "BE", partitionID, Date(2025, time.October, 3)),
		CreatedAt:       repoTestTime,
		UpdatedAt:       repoTestTime,
	}
}

func testCertificates(t *testing.T, repo certificate.Repository) {
	ctx := context.Background()
	CreatePartition(t, repo, "FT", "Faculty of Technology")
	CreatePartition(t, repo, "LAW", "School of Law")

	a := repoTestCertificate("partition-FT", "A001", 1)
	a.ParticipantEmail = "a001@example.com"
	a.Grade = "First Class"
	created, err := repo.CreateCertificate(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, a, created)

	// same key in another partition is another certificate
	law := repoTestCertificate("partition-LAW", "A001", 1)
	_, err = repo.CreateCertificate(ctx, law)
	require.NoError(t, err)

	sameKey := repoTestCertificate("partition-FT", "A001", 2)
	sameKey.ID = "other"
	_, err = repo.CreateCertificate(ctx, sameKey)
	assert.Equal(t, certificate.ErrDuplicateKey, errors.Cause(err))

	sameVID := repoTestCertificate("partition-FT", "A002", 1)
	_, err = repo.CreateCertificate(ctx, sameVID)
	assert.Equal(t, certificate.ErrDuplicateKey, errors.Cause(err))

	got, err := repo.GetCertificateByKey(ctx, "partition-FT", a.Key())
	require.NoError(t, err)
	assert.Equal(t, a, got)

	lower := a.Key()
	lower.ParticipantID = "a001"
	_, err = repo.GetCertificateByKey(ctx, "partition-FT", lower)
	assert.Equal(t, certificate.ErrNotFound, errors.Cause(err))

	got, err = repo.GetCertificateByID(ctx, "partition-FT", a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)
	_, err = repo.GetCertificateByID(ctx, "partition-LAW", a.ID)
	assert.Equal(t, certificate.ErrNotFound, errors.Cause(err))

	got, err = repo.GetCertificateByVerificationID(ctx, law.VerificationID)
	require.NoError(t, err)
	assert.Equal(t, law, got)
	_, err = repo.GetCertificateByVerificationID(ctx, "999/BE/FT/X/2025")
	assert.Equal(t, certificate.ErrNotFound, errors.Cause(err))

	// only the mutable fields are saved
	changed := a
	changed.ParticipantName = "Amani Juma"
	changed.ParticipantEmail = ""
	changed.Subtitle = "With Honours"
	changed.Grade = "Second Class"
	changed.IssueDate = Date(2025, time.November, 1)
	changed.DocumentURL = "https://cheti.test/media/a.pdf"
	changed.UpdatedAt = repoTestTime.Add(time.Hour)
	changed.Title = "Ignored"
	changed.VerificationID = "ignored"
	updated, err := repo.UpdateCertificate(ctx, changed)
	require.NoError(t, err)
	want := changed
	want.Title = a.Title
	want.VerificationID = a.VerificationID
	assert.Equal(t, want, updated)

	_, err = repo.UpdateCertificate(ctx, repoTestCertificate("partition-FT", "Z999", 9))
	assert.Equal(t, certificate.ErrNotFound, errors.Cause(err))

	require.NoError(t, repo.IncrementVerificationCount(ctx, a.ID))
	require.NoError(t, repo.IncrementVerificationCount(ctx, a.ID))
	got, err = repo.GetCertificateByID(ctx, "partition-FT", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.VerificationCount)
	assert.Equal(t, certificate.ErrNotFound, errors.Cause(repo.IncrementVerificationCount(ctx, "unknown")))

	vids, err := repo.ListVerificationIDs(ctx, "partition-FT")
	require.NoError(t, err)
	assert.Equal(t, []string{a.VerificationID}, vids)
	vids, err = repo.ListVerificationIDs(ctx, "partition-unknown")
	require.NoError(t, err)
	assert.Empty(t, vids)
}

func testFilter(t *testing.T, repo certificate.Repository) {
	ctx := context.Background()
	CreatePartition(t, repo, "FT", "Faculty of Technology")
	CreatePartition(t, repo, "LAW", "School of Law")

	amani := repoTestCertificate("partition-FT", "A001", 1)
	amani.ParticipantName = "Amani Juma"
	baraka := repoTestCertificate("partition-FT", "B002", 2)
	baraka.ParticipantName = "Baraka Ali"
	baraka.Title = "Diploma of Engineering"
	chausiku := repoTestCertificate("partition-FT", "C003", 3)
	chausiku.ParticipantName = "Chausiku 100% Mrema"
	chausiku.ProgramName = "Mechanical Engineering"
	other := repoTestCertificate("partition-LAW", "A001", 1)
	for _, c := range []certificate.Certificate{chausiku, amani, baraka, other} {
		CreateCertificate(t, repo, c)
	}

	ids := func(certs []certificate.Certificate) []string {
		res := make([]string, 0, len(certs))
		for _, c := range certs {
			res = append(res, c.ParticipantID)
		}
		return res
	}

	tests := []struct {
		name   string
		filter certificate.QueryFilter
		want   []string
	}{
		{name: "all, default ordering", want: []string{"A001", "B002", "C003"}},
		{name: "search name, any case", filter: certificate.QueryFilter{Search: "amani"}, want: []string{"A001"}},
		{name: "search participant ID", filter: certificate.QueryFilter{Search: "b00"}, want: []string{"B002"}},
		{name: "search verification ID", filter: certificate.QueryFilter{Search: "003/be"}, want: []string{"C003"}},
		{name: "search wildcard is literal", filter: certificate.QueryFilter{Search: "100%"}, want: []string{"C003"}},
		{name: "program", filter: certificate.QueryFilter{Program: "Civil Engineering"}, want: []string{"A001", "B002"}},
		{name: "title", filter: certificate.QueryFilter{Title: "Diploma of Engineering"}, want: []string{"B002"}},
		{
			name:   "program and title",
			filter: certificate.QueryFilter{Program: "Civil Engineering", Title: "Bachelor of Engineering"},
			want:   []string{"A001"},
		},
		{
			name:   "ordering",
			filter: certificate.QueryFilter{Ordering: []core.DBOrdering{{Field: "participant_name", Ascending: false}}},
			want:   []string{"C003", "B002", "A001"},
		},
		{name: "no match", filter: certificate.QueryFilter{Search: "nobody"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FilterCertificates(ctx, "partition-FT", tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func testSequences(t *testing.T, repo certificate.Repository) {
	ctx := context.Background()
	CreatePartition(t, repo, "FT", "Faculty of Technology")
	CreatePartition(t, repo, "LAW", "School of Law")

	next := func(partitionID string, floor int) int {
		n, err := repo.NextSequence(ctx, partitionID, floor)
		require.NoError(t, err)
		return n
	}
	release := func(partitionID string, value int) bool {
		ok, err := repo.ReleaseSequence(ctx, partitionID, value)
		require.NoError(t, err)
		return ok
	}

	assert.Equal(t, 1, next("partition-FT", 0))
	assert.Equal(t, 11, next("partition-FT", 10))
	assert.Equal(t, 12, next("partition-FT", 5))
	assert.True(t, release("partition-FT", 12))
	assert.Equal(t, 12, next("partition-FT", 0))
	assert.False(t, release("partition-FT", 11))
	assert.Equal(t, 13, next("partition-FT", 0))
	assert.False(t, release("partition-LAW", 1))
	assert.Equal(t, 1, next("partition-LAW", 0))
}
