package dig_container

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/cheti/apps/api/echo"
	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
	"github.com/trezcool/cheti/services/lock"
	"github.com/trezcool/cheti/storage/database"
)

func TestNew_sqlite(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ENV", "TEST")
	t.Setenv("TEST_DATABASE_ENGINE", database.EngineSQLite)
	t.Setenv("TEST_DATABASE_PATH", filepath.Join(dir, "cheti.db"))
	t.Setenv("TEST_STORAGE_BACKEND", "local")
	t.Setenv("TEST_STORAGE_LOCALDIR", filepath.Join(dir, "media"))
	t.Setenv("TEST_REDIS_ADDR", "")
	t.Setenv("TEST_TRACING_ENDPOINT", "")

	c := New("test")
	err := c.Invoke(func(
		conf *core.Config,
		storage *Storage,
		locker certificate.Locker,
		svc *certificate.Service,
		server *echoapi.Server,
	) {
		defer func() { assert.NoError(t, storage.Close()) }()

		assert.True(t, conf.TestMode)
		assert.Equal(t, database.EngineSQLite, storage.Engine)
		assert.IsType(t, &lock.LocalLocker{}, locker)
		assert.NotNil(t, svc)
		assert.NotNil(t, server)
	})
	require.NoError(t, err)
}

func TestNew_unknownEngine(t *testing.T) {
	t.Setenv("ENV", "TEST")
	t.Setenv("TEST_DATABASE_ENGINE", "oracle")

	err := New("test").Invoke(func(*Storage) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown database engine "oracle"`)
}

func TestNewSigner(t *testing.T) {
	conf := &core.Config{SecretKey: "secret-key"}
	fallback, err := newSigner(conf)
	require.NoError(t, err)

	conf.SigningSecret = "signing-secret"
	dedicated, err := newSigner(conf)
	require.NoError(t, err)

	p := certificate.Payload{VerificationID: "001/BE/FT/X/2025", Title: "t", ParticipantName: "n", ProgramName: "p", PartitionName: "FT"}
	data, sig, err := fallback.Sign(p)
	require.NoError(t, err)
	_, reason := dedicated.Check(data, sig)
	assert.Equal(t, certificate.ReasonSignatureMismatch, reason)
}
