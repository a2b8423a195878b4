package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	. "github.com/trezcool/cheti/apps/api/echo"
	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
	"github.com/trezcool/cheti/services/lock"
	"github.com/trezcool/cheti/storage/database/inmem"
	"github.com/trezcool/cheti/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fixture struct {
	conf      *core.Config
	app       *Server
	repo      certificate.Repository
	svc       *certificate.Service
	store     *testutil.DocumentStore
	partition certificate.Partition
	token     string
}

func setup(t *testing.T) fixture {
	conf := testutil.NewConfig()
	logger := new(testutil.Logger)

	// set up DB & repos
	repo := inmemdb.NewCertificateRepository(inmemdb.Open())
	partition := testutil.CreatePartition(t, repo, "FT", "Faculty of Technology")

	// set up services
	signer, err := certificate.NewSigner(conf.SigningSecret)
	if err != nil {
		t.Fatalf("NewSigner() failed: %v", err)
	}
	store := testutil.NewDocumentStore()
	svc := certificate.NewService(certificate.Deps{
		Conf:      conf,
		Repo:      repo,
		Signer:    signer,
		Locker:    lock.NewLocalLocker(),
		Store:     store,
		Generator: new(testutil.DocumentGenerator),
		Log:       logger,
	})

	// set up server
	app := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		CertificateSvc: svc,
		DisableReqLogs: true,
	})

	return fixture{
		conf:      conf,
		app:       app,
		repo:      repo,
		svc:       svc,
		store:     store,
		partition: partition,
		token:     getToken(t, conf, partition.ID),
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newUploadRequest builds a multipart request; an empty filename sends no file.
func newUploadRequest(t *testing.T, path, token, filename string, content []byte, fields map[string]string) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() failed: %v", err)
		}
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile() failed: %v", err)
		}
		if _, err = io.Copy(part, bytes.NewReader(content)); err != nil {
			t.Fatalf("writing file part failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("multipart.Close() failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func getToken(t *testing.T, conf *core.Config, partitionID string) string {
	claims := NewClaims(conf, "staff-1", "Registrar", partitionID)
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func item(participantID, name string) certificate.BatchItem {
	return certificate.BatchItem{
		ParticipantID:   participantID,
		ParticipantName: name,
		ProgramName:     "Civil Engineering",
		ProgramCode:     "BE",
		Title:           "Bachelor of Engineering",
		IssueDate:       "2025-10-03",
	}
}
