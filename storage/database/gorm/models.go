package gormrepos

import (
	"time"

	"github.com/trezcool/cheti/core/certificate"
)

type (
	partitionModel struct {
		ID        string    `gorm:"primaryKey;size:36"`
		Code      string    `gorm:"size:16;not null;uniqueIndex"`
		Name      string    `gorm:"size:255;not null"`
		CreatedAt time.Time `gorm:"not null;autoCreateTime:false"`
	}

	certificateModel struct {
		ID                string    `gorm:"primaryKey;size:36"`
		PartitionID       string    `gorm:"size:36;not null;uniqueIndex:certificates_identity_key,priority:1;index:certificates_partition_issued_number_idx,priority:1"`
		ParticipantID     string    `gorm:"size:100;not null;uniqueIndex:certificates_identity_key,priority:2"`
		ParticipantName   string    `gorm:"size:255;not null"`
		ParticipantEmail  string    `gorm:"size:255;not null;default:''"`
		ProgramName       string    `gorm:"size:255;not null;uniqueIndex:certificates_identity_key,priority:3"`
		ProgramCode       string    `gorm:"size:16;not null"`
		Title             string    `gorm:"size:255;not null;uniqueIndex:certificates_identity_key,priority:4"`
		Subtitle          string    `gorm:"size:255;not null;default:''"`
		Grade             string    `gorm:"size:50;not null;default:''"`
		IssueDate         time.Time `gorm:"not null"`
		IssuedNumber      int       `gorm:"not null;index:certificates_partition_issued_number_idx,priority:2"`
		VerificationID    string    `gorm:"size:100;not null;uniqueIndex"`
		DocumentURL       string    `gorm:"not null;default:''"`
		VerificationCount int       `gorm:"not null;default:0"`
		CreatedAt         time.Time `gorm:"not null;autoCreateTime:false"`
		UpdatedAt         time.Time `gorm:"not null;autoUpdateTime:false"`
	}

	sequenceModel struct {
		PartitionID string `gorm:"primaryKey;size:36"`
		LastValue   int    `gorm:"not null;default:0"`
	}
)

func (partitionModel) TableName() string   { return "partitions" }
func (certificateModel) TableName() string { return "certificates" }
func (sequenceModel) TableName() string    { return "certificate_sequences" }

func newPartitionModel(p certificate.Partition) partitionModel {
	return partitionModel{ID: p.ID, Code: p.Code, Name: p.Name, CreatedAt: p.CreatedAt}
}

func (m partitionModel) toPartition() certificate.Partition {
	return certificate.Partition{ID: m.ID, Code: m.Code, Name: m.Name, CreatedAt: m.CreatedAt.UTC()}
}

func newCertificateModel(c certificate.Certificate) certificateModel {
	return certificateModel{
		ID:                c.ID,
		PartitionID:       c.PartitionID,
		ParticipantID:     c.ParticipantID,
		ParticipantName:   c.ParticipantName,
		ParticipantEmail:  c.ParticipantEmail,
		ProgramName:       c.ProgramName,
		ProgramCode:       c.ProgramCode,
		Title:             c.Title,
		Subtitle:          c.Subtitle,
		Grade:             c.Grade,
		IssueDate:         c.IssueDate.UTC(),
		IssuedNumber:      c.IssuedNumber,
		VerificationID:    c.VerificationID,
		DocumentURL:       c.DocumentURL,
		VerificationCount: c.VerificationCount,
		CreatedAt:         c.CreatedAt.UTC(),
		UpdatedAt:         c.UpdatedAt.UTC(),
	}
}

func (m certificateModel) toCertificate() certificate.Certificate {
	issued := m.IssueDate.UTC()
	return certificate.Certificate{
		ID:                m.ID,
		PartitionID:       m.PartitionID,
		ParticipantID:     m.ParticipantID,
		ParticipantName:   m.ParticipantName,
		ParticipantEmail:  m.ParticipantEmail,
		ProgramName:       m.ProgramName,
		ProgramCode:       m.ProgramCode,
		Title:             m.Title,
		Subtitle:          m.Subtitle,
		Grade:             m.Grade,
		IssueDate:         time.Date(issued.Year(), issued.Month(), issued.Day(), 0, 0, 0, 0, time.UTC),
		IssuedNumber:      m.IssuedNumber,
		VerificationID:    m.VerificationID,
		DocumentURL:       m.DocumentURL,
		VerificationCount: m.VerificationCount,
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
	}
}
