package certificate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/cheti/core/certificate"
	"github.com/trezcool/cheti/tests"
)

func TestService_Verify(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vid := f.reconcile(t, item("A001", "Civil Engineering", "Bachelor of Engineering")).Created[0]
	cert := f.get(t, vid)

	signer, err := certificate.NewSigner(f.conf.SigningSecret)
	require.NoError(t, err)
	sign := func(p certificate.Payload) (string, string) {
		data, sig, err := signer.Sign(p)
		require.NoError(t, err)
		return data, sig
	}

	valid := certificate.NewPayload(cert, f.partition)
	validData, validSig := sign(valid)

	unknown := valid
	unknown.VerificationID = "999/BE/FT/X/2025"
	unknownData, unknownSig := sign(unknown)

	otherTitle := valid
	otherTitle.Title = "Certificate of Merit"
	otherTitleData, otherTitleSig := sign(otherTitle)

	otherPartition := valid
	otherPartition.PartitionName = "School of Law"
	otherPartitionData, otherPartitionSig := sign(otherPartition)

	forged, err := certificate.NewSigner("not-the-secret")
	require.NoError(t, err)
	_, forgedSig, err := forged.Sign(valid)
	require.NoError(t, err)

	tests := []struct {
		name       string
		data       string
		sig        string
		wantValid  bool
		wantReason certificate.Reason
		wantCount  int
	}{
		{name: "valid", data: validData, sig: validSig, wantValid: true, wantCount: 1},
		{name: "valid again", data: validData, sig: validSig, wantValid: true, wantCount: 2},
		{name: "forged signature", data: validData, sig: forgedSig, wantReason: certificate.ReasonSignatureMismatch},
		{name: "swapped signature", data: validData, sig: unknownSig, wantReason: certificate.ReasonSignatureMismatch},
		{name: "unknown verification ID", data: unknownData, sig: unknownSig, wantReason: certificate.ReasonNotFound},
		{name: "title mismatch", data: otherTitleData, sig: otherTitleSig, wantReason: certificate.ReasonNotFound},
		{name: "partition mismatch", data: otherPartitionData, sig: otherPartitionSig, wantReason: certificate.ReasonNotFound},
		{name: "garbage", data: "not*base64", sig: validSig, wantReason: certificate.ReasonMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := f.svc.Verify(ctx, tt.data, tt.sig)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, v.Valid)
			assert.Equal(t, tt.wantReason, v.Reason)
			if !tt.wantValid {
				assert.Nil(t, v.Certificate)
				return
			}
			require.NotNil(t, v.Certificate)
			assert.Equal(t, vid, v.Certificate.VerificationID)
			assert.Equal(t, "Faculty of Technology", v.Certificate.PartitionName)
			assert.Equal(t, "2025-10-03", v.Certificate.IssueDate)
			assert.Equal(t, tt.wantCount, v.Certificate.VerificationCount)
			assert.Equal(t, tt.wantCount, f.get(t, vid).VerificationCount)
		})
	}
}

func TestService_VerifyAfterUpdate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vid := f.reconcile(t, item("A001", "Civil Engineering", "Bachelor of Engineering")).Created[0]
	cert := f.get(t, vid)
	link, err := f.svc.Link(ctx, f.partition.ID, cert.ID)
	require.NoError(t, err)

	changed := item("A001", "Civil Engineering", "Bachelor of Engineering")
	changed.ParticipantName = "Amani Juma"
	f.reconcile(t, changed)

	// links issued before an update still verify, and show the current record
	data, sig := splitLink(t, link)
	v, err := f.svc.Verify(ctx, data, sig)
	require.NoError(t, err)
	require.True(t, v.Valid)
	assert.Equal(t, "Amani Juma", v.Certificate.ParticipantName)
}

func TestService_VerifyIssueDateMonth(t *testing.T) {
	f := setup(t)
	it := item("A001", "Civil Engineering", "Bachelor of Engineering")
	it.IssueDate = "2024-04-30"
	vid := f.reconcile(t, it).Created[0]
	assert.Equal(t, "001/BE/FT/IV/2024", vid)
	assert.Equal(t, testutil.Date(2024, time.April, 30), f.get(t, vid).IssueDate)
}

func splitLink(t *testing.T, link string) (string, string) {
	t.Helper()
	var data, sig string
	const prefix = "https://cheti.test/verify/"
	require.Greater(t, len(link), len(prefix))
	rest := link[len(prefix):]
	for i := len(rest) - 1; i >= 0; i-- {
		if rest[i] == '/' {
			data, sig = rest[:i], rest[i+1:]
			break
		}
	}
	require.NotEmpty(t, data)
	return data, sig
}
