package testutil

import (
	"context"
	"fmt"
	"net/mail"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
)

// NewConfig returns the configuration used by tests.
func NewConfig() *core.Config {
	return &core.Config{
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		AppName:          "Cheti",
		SecretKey:        "test-secret-key",
		SigningSecret:    "test-signing-secret",
		VerifyBaseURL:    "https://cheti.test",
		FrontendBaseURL:  "https://app.cheti.test",
		DefaultFromEmail: mail.Address{Name: "Cheti", Address: "noreply@cheti.test"},
		Server: core.ServerConfig{
			Host:               "localhost",
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
		},
		Storage: core.StorageConfig{
			Backend:       "local",
			PublicBaseURL: "https://cheti.test/media",
		},
		Certificates: core.CertificatesConfig{
			LockTimeout: 5 * time.Second,
		},
	}
}

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records log entries instead of printing them.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }

// Entries returns the recorded entries of the given level, all of them if level is empty.
func (l *Logger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := make([]LogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			entries = append(entries, e)
		}
	}
	return entries
}

// DocumentStore keeps documents in memory.
type DocumentStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Fail    bool
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{Objects: make(map[string][]byte)}
}

func (s *DocumentStore) Put(_ context.Context, name string, content []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return "", errors.New("store unavailable")
	}
	s.Objects[name] = content
	return "https://cheti.test/media/" + name, nil
}

func (s *DocumentStore) Get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.Objects[name]
	return content, ok
}

// DocumentGenerator renders a fake PDF; FailFor makes it fail for the given participant IDs.
type DocumentGenerator struct {
	mu      sync.Mutex
	FailFor map[string]bool
	Calls   []certificate.Document
}

func (g *DocumentGenerator) Generate(_ context.Context, doc certificate.Document) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, doc)
	if g.FailFor[doc.Certificate.ParticipantID] {
		return nil, errors.New("template error")
	}
	return []byte(fmt.Sprintf("%%PDF-1.3 %s %s", doc.Certificate.VerificationID, doc.Link)), nil
}

func CreatePartition(t *testing.T, repo certificate.Repository, code, name string) certificate.Partition {
	p, err := repo.CreatePartition(context.Background(), certificate.Partition{
		ID:        "partition-" + code,
		Code:      code,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreatePartition() failed: %v", err)
	}
	return p
}

func CreateCertificate(t *testing.T, repo certificate.Repository, cert certificate.Certificate) certificate.Certificate {
	now := time.Now().UTC()
	if cert.ID == "" {
		cert.ID = fmt.Sprintf("cert-%s-%d", cert.PartitionID, cert.IssuedNumber)
	}
	if cert.CreatedAt.IsZero() {
		cert.CreatedAt = now
	}
	if cert.UpdatedAt.IsZero() {
		cert.UpdatedAt = cert.CreatedAt
	}
	cert, err := repo.CreateCertificate(context.Background(), cert)
	if err != nil {
		t.Fatalf("CreateCertificate() failed: %v", err)
	}
	return cert
}

// Date returns the UTC midnight of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
