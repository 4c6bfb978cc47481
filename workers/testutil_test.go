package workers

import (
	"testing"

	"term-translation-system/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Source{},
		&models.Term{},
		&models.TermField{},
		&models.Translation{},
		&models.Task{},
	))

	// The sync upsert targets this index with ON CONFLICT DO NOTHING.
	require.NoError(t, db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_term_fields_identity
		ON term_fields (term_id, predicate, original_value)`).Error)

	return db
}
