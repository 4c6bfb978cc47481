package workers

import (
	"testing"
	"time"

	"term-translation-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReapStuckTasks(t *testing.T) {
	db := newTestDB(t)

	stuck := models.Task{
		ID:       uuid.NewString(),
		TaskType: models.TaskTypeTriplestoreSync,
		SourceID: "src-1",
		Status:   models.TaskStatusRunning,
	}
	require.NoError(t, db.Create(&stuck).Error)
	// Backdate past the timeout.
	require.NoError(t, db.Model(&stuck).UpdateColumn("updated_at", time.Now().Add(-time.Hour)).Error)

	fresh := models.Task{
		ID:       uuid.NewString(),
		TaskType: models.TaskTypeFeedSync,
		SourceID: "src-2",
		Status:   models.TaskStatusRunning,
	}
	require.NoError(t, db.Create(&fresh).Error)

	done := models.Task{
		ID:       uuid.NewString(),
		TaskType: models.TaskTypeHarvest,
		SourceID: "src-3",
		Status:   models.TaskStatusCompleted,
	}
	require.NoError(t, db.Create(&done).Error)
	require.NoError(t, db.Model(&done).UpdateColumn("updated_at", time.Now().Add(-time.Hour)).Error)

	reapStuckTasks(db, DefaultStuckTaskTimeout)

	var reaped models.Task
	require.NoError(t, db.First(&reaped, "id = ?", stuck.ID).Error)
	assert.Equal(t, models.TaskStatusFailed, reaped.Status)
	assert.Contains(t, reaped.ErrorMessage, "stuck in running state")
	assert.NotNil(t, reaped.CompletedAt)

	var untouched models.Task
	require.NoError(t, db.First(&untouched, "id = ?", fresh.ID).Error)
	assert.Equal(t, models.TaskStatusRunning, untouched.Status, "recent tasks are left alone")

	require.NoError(t, db.First(&untouched, "id = ?", done.ID).Error)
	assert.Equal(t, models.TaskStatusCompleted, untouched.Status, "terminal states are never touched")
}
