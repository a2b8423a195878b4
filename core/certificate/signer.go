package certificate

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"

	"github.com/trezcool/cheti/core"
)

const (
	canonicalHeader = "cheti.v1"
	unitSeparator   = 0x1F
	payloadFields   = 7
)

var (
	signingSalt = []byte("cheti.core.certificate.signer")
	signingInfo = []byte("certificate verification links")

	errMalformed = errors.New("malformed payload")
)

// Payload is the subset of certificate fields covered by a verification signature.
type Payload struct {
	VerificationID  string
	Title           string
	ParticipantName string
	ProgramName     string
	IssueDate       time.Time
	Grade           string
	PartitionName   string
}

func NewPayload(cert Certificate, partition Partition) Payload {
	return Payload{
		VerificationID:  cert.VerificationID,
		Title:           cert.Title,
		ParticipantName: cert.ParticipantName,
		ProgramName:     cert.ProgramName,
		IssueDate:       cert.IssueDate,
		Grade:           cert.Grade,
		PartitionName:   partition.Name,
	}
}

func (p Payload) fields() []string {
	return []string{
		p.VerificationID,
		p.Title,
		p.ParticipantName,
		p.ProgramName,
		p.IssueDate.Format(core.DateLayout),
		p.Grade,
		p.PartitionName,
	}
}

// Canonical returns the byte form that is signed: the header then each field, separated by 0x1F.
func (p Payload) Canonical() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(canonicalHeader)
	for _, f := range p.fields() {
		if core.HasControlChars(f) {
			return nil, errors.Wrapf(errMalformed, "control character in %q", f)
		}
		buf.WriteByte(unitSeparator)
		buf.WriteString(f)
	}
	return buf.Bytes(), nil
}

func parseCanonical(b []byte) (Payload, error) {
	parts := bytes.Split(b, []byte{unitSeparator})
	if len(parts) != payloadFields+1 || string(parts[0]) != canonicalHeader {
		return Payload{}, errMalformed
	}
	issued, err := time.Parse(core.DateLayout, string(parts[5]))
	if err != nil {
		return Payload{}, errMalformed
	}
	p := Payload{
		VerificationID:  string(parts[1]),
		Title:           string(parts[2]),
		ParticipantName: string(parts[3]),
		ProgramName:     string(parts[4]),
		IssueDate:       issued,
		Grade:           string(parts[6]),
		PartitionName:   string(parts[7]),
	}

	// only one byte form is accepted per payload
	canon, err := p.Canonical()
	if err != nil || !bytes.Equal(canon, b) {
		return Payload{}, errMalformed
	}
	return p, nil
}

var linkEncoding = base64.RawURLEncoding.Strict()

// Signer signs and checks certificate payloads with HMAC-SHA256.
type Signer struct {
	key []byte
}

// NewSigner derives the HMAC key from secret using HKDF-SHA256.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("empty signing secret")
	}
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), signingSalt, signingInfo), key); err != nil {
		return nil, errors.Wrap(err, "deriving signing key")
	}
	return &Signer{key: key}, nil
}

func (s *Signer) mac(b []byte) []byte {
	h := hmac.New(sha256.New, s.key)
	_, _ = h.Write(b)
	return h.Sum(nil)
}

// Sign returns the url-safe data and signature segments for p.
func (s *Signer) Sign(p Payload) (data, signature string, err error) {
	canon, err := p.Canonical()
	if err != nil {
		return "", "", err
	}
	return linkEncoding.EncodeToString(canon), linkEncoding.EncodeToString(s.mac(canon)), nil
}

// Check decodes data and verifies signature over it.
// It returns the decoded payload, or the reason why it cannot be trusted.
func (s *Signer) Check(data, signature string) (Payload, Reason) {
	canon, err := linkEncoding.DecodeString(data)
	if err != nil || len(canon) == 0 {
		return Payload{}, ReasonMalformed
	}
	sig, err := linkEncoding.DecodeString(signature)
	if err != nil || len(sig) != sha256.Size {
		return Payload{}, ReasonMalformed
	}
	if !hmac.Equal(s.mac(canon), sig) {
		return Payload{}, ReasonSignatureMismatch
	}
	// only reached with bytes signed by this key
	p, err := parseCanonical(canon)
	if err != nil {
		return Payload{}, ReasonMalformed
	}
	return p, ""
}
