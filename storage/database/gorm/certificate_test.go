package gormrepos_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/cheti/core/certificate"
	"github.com/trezcool/cheti/storage/database"
	gormrepos "github.com/trezcool/cheti/storage/database/gorm"
	"github.com/trezcool/cheti/tests"
)

func TestCertificateRepository(t *testing.T) {
	testutil.RunRepositoryTests(t, func(t *testing.T) certificate.Repository {
		db, err := database.OpenSQLite(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
		require.NoError(t, gormrepos.Migrate(db))
		return gormrepos.NewCertificateRepository(db)
	})
}
