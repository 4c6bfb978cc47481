package workers

import (
	"context"
	"log"
	"time"

	"term-translation-system/models"

	"gorm.io/gorm"
)

// DefaultStuckTaskTimeout is how long a task may sit in running before the
// reaper declares the process that owned it dead.
const DefaultStuckTaskTimeout = 30 * time.Minute

// PollStuckTasks reconciles tasks left in running by a crashed process into
// failed. Runs once at startup (catching tasks orphaned by the previous
// process) and then on every tick.
func PollStuckTasks(ctx context.Context, db *gorm.DB, pollInterval, timeout time.Duration) {
	log.Println("Starting stuck-task reaper...")

	reapStuckTasks(db, timeout)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reapStuckTasks(db, timeout)
		case <-ctx.Done():
			log.Println("⏹️ Stuck-task reaper stopped")
			return
		}
	}
}

func reapStuckTasks(db *gorm.DB, timeout time.Duration) {
	now := time.Now()
	cutoff := now.Add(-timeout)

	res := db.Model(&models.Task{}).
		Where("status = ?", models.TaskStatusRunning).
		Where("updated_at < ?", cutoff).
		Updates(map[string]interface{}{
			"status":        models.TaskStatusFailed,
			"error_message": "task stuck in running state past timeout — process likely crashed mid-execution",
			"completed_at":  now,
		})
	if res.Error != nil {
		log.Printf("❌ [REAPER] Failed to reap stuck tasks: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("🧹 [REAPER] Marked %d stuck task(s) as failed", res.RowsAffected)
	}
}
