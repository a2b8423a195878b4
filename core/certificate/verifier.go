package certificate

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/trezcool/cheti/core"
)

// Reason tells why a verification failed.
type Reason string

const (
	ReasonSignatureMismatch Reason = "signature_mismatch"
	ReasonNotFound          Reason = "not_found"
	ReasonMalformed         Reason = "malformed"

	// metric results
	ResultValid = "valid"
)

// Verification is the outcome of checking a verification link.
type Verification struct {
	Valid       bool                 `json:"valid"`
	Reason      Reason               `json:"reason,omitempty"`
	Certificate *VerifiedCertificate `json:"certificate,omitempty"`
}

// VerifiedCertificate holds the fields displayed for a valid certificate.
type VerifiedCertificate struct {
	VerificationID    string `json:"verification_id"`
	ParticipantName   string `json:"participant_name"`
	Title             string `json:"title"`
	Subtitle          string `json:"subtitle,omitempty"`
	ProgramName       string `json:"program"`
	PartitionName     string `json:"partition"`
	IssueDate         string `json:"issue_date"`
	Grade             string `json:"grade,omitempty"`
	DocumentURL       string `json:"document_url,omitempty"`
	VerificationCount int    `json:"verification_count"`
}

func invalid(reason Reason) Verification {
	return Verification{Reason: reason}
}

// Verify checks a link's data and signature segments against the stored certificates.
// Expected failures are reported in the Verification; only infrastructure errors are returned.
func (svc *Service) Verify(ctx context.Context, data, signature string) (Verification, error) {
	ctx, span := tracer.Start(ctx, "certificate.Verify")
	defer span.End()

	v, err := svc.verify(ctx, data, signature)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Verification{}, err
	}

	result := ResultValid
	if !v.Valid {
		result = string(v.Reason)
	}
	span.SetAttributes(attribute.String("verification.result", result))
	svc.metrics.Verified(result)
	return v, nil
}

func (svc *Service) verify(ctx context.Context, data, signature string) (Verification, error) {
	payload, reason := svc.signer.Check(data, signature)
	if reason != "" {
		return invalid(reason), nil
	}

	cert, err := svc.repo.GetCertificateByVerificationID(ctx, payload.VerificationID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalid(ReasonNotFound), nil
		}
		return Verification{}, errors.Wrap(err, "looking up certificate")
	}
	partition, err := svc.GetPartition(ctx, cert.PartitionID)
	if err != nil {
		if errors.Cause(err) == ErrPartitionNotFound {
			return invalid(ReasonNotFound), nil
		}
		return Verification{}, errors.Wrap(err, "looking up partition")
	}
	if cert.Title != payload.Title || cert.ProgramName != payload.ProgramName || partition.Name != payload.PartitionName {
		return invalid(ReasonNotFound), nil
	}

	count := cert.VerificationCount
	if err := svc.repo.IncrementVerificationCount(ctx, cert.ID); err != nil {
		svc.log.Warn("incrementing verification count", err, map[string]interface{}{"verification_id": cert.VerificationID})
	} else {
		count++
	}

	return Verification{
		Valid: true,
		Certificate: &VerifiedCertificate{
			VerificationID:    cert.VerificationID,
			ParticipantName:   cert.ParticipantName,
			Title:             cert.Title,
			Subtitle:          cert.Subtitle,
			ProgramName:       cert.ProgramName,
			PartitionName:     partition.Name,
			IssueDate:         cert.IssueDate.Format(core.DateLayout),
			Grade:             cert.Grade,
			DocumentURL:       cert.DocumentURL,
			VerificationCount: count,
		},
	}, nil
}
