package services

import (
	"testing"

	"term-translation-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database with the full schema,
// including the indexes created outside AutoMigrate.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// An in-memory database exists per connection; a second pooled
	// connection would see an empty schema.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Source{},
		&models.Term{},
		&models.TermField{},
		&models.Translation{},
		&models.ReputationEvent{},
		&models.ReputationRule{},
		&models.UserStats{},
		&models.DailyChallenge{},
		&models.FlowSession{},
		&models.Task{},
		&models.TaskScheduler{},
	))

	require.NoError(t, db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_active_unique
		ON tasks (source_id, task_type) WHERE status IN ('pending', 'running') AND deleted_at IS NULL`).Error)
	require.NoError(t, db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_term_fields_identity
		ON term_fields (term_id, predicate, original_value)`).Error)

	return db
}

func newSeededReputationService(t *testing.T, db *gorm.DB) *ReputationService {
	t.Helper()
	svc := NewReputationService(db)
	require.NoError(t, svc.SeedDefaultRules())
	return svc
}

func createTestUser(t *testing.T, db *gorm.DB, username string, reputation int) *models.User {
	t.Helper()
	user := &models.User{
		ID:         uuid.NewString(),
		Username:   username,
		Reputation: reputation,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createRejectedTranslation(t *testing.T, db *gorm.DB, fieldID, userID, lang string) *models.Translation {
	t.Helper()
	tr := &models.Translation{
		ID:          uuid.NewString(),
		TermFieldID: fieldID,
		Language:    lang,
		Value:       "rejected value",
		Status:      models.TranslationStatusRejected,
		CreatedBy:   &userID,
	}
	require.NoError(t, db.Create(tr).Error)
	return tr
}

func createTestField(t *testing.T, db *gorm.DB, termID, predicate, value string, role models.FieldRole) *models.TermField {
	t.Helper()
	field := &models.TermField{
		ID:            uuid.NewString(),
		TermID:        termID,
		Predicate:     predicate,
		PredicateURI:  predicate,
		OriginalValue: value,
		Role:          role,
	}
	require.NoError(t, db.Create(field).Error)
	return field
}

func createTestTerm(t *testing.T, db *gorm.DB, sourceID, uri string) *models.Term {
	t.Helper()
	term := &models.Term{
		ID:       uuid.NewString(),
		URI:      uri,
		SourceID: sourceID,
	}
	require.NoError(t, db.Create(term).Error)
	return term
}
