package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"term-translation-system/models"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Dispatcher timing knobs.
const (
	// DuplicateRetryDelay postpones a scheduler whose previous task is still
	// in flight, so it retries soon instead of silently skipping a cycle.
	DuplicateRetryDelay = time.Minute
	// CronFallbackDelay is used when a schedule_config fails to parse; the
	// scheduler keeps limping hourly rather than halting forever.
	CronFallbackDelay = time.Hour
)

// TaskHandler executes one task, appending human-readable lines to the
// buffer. Returning an error lands the task in failed with the buffered logs.
type TaskHandler func(ctx context.Context, task *models.Task, buf *models.TaskLogBuffer) error

// TaskHandlers is the closed dispatch table: one handler per TaskType
// variant. Leaving a field nil makes tasks of that type fail loudly.
type TaskHandlers struct {
	FileUpload      TaskHandler
	TriplestoreSync TaskHandler
	FeedSync        TaskHandler
	Harvest         TaskHandler
}

type TaskService struct {
	DB       *gorm.DB
	handlers map[models.TaskType]TaskHandler

	now func() time.Time
}

func NewTaskService(db *gorm.DB, handlers TaskHandlers) *TaskService {
	return &TaskService{
		DB: db,
		handlers: map[models.TaskType]TaskHandler{
			models.TaskTypeFileUpload:      handlers.FileUpload,
			models.TaskTypeTriplestoreSync: handlers.TriplestoreSync,
			models.TaskTypeFeedSync:        handlers.FeedSync,
			models.TaskTypeHarvest:         handlers.Harvest,
		},
		now: time.Now,
	}
}

// NextRunAfter evaluates a schedule_config against a reference time. A plain
// integer is a fixed interval in seconds; anything else is parsed as a cron
// expression, falling back to +1h when it does not parse.
func (s *TaskService) NextRunAfter(config string, after time.Time) time.Time {
	cfg := strings.TrimSpace(config)
	if secs, err := strconv.Atoi(cfg); err == nil && secs > 0 {
		return after.Add(time.Duration(secs) * time.Second)
	}
	schedule, err := cron.ParseStandard(cfg)
	if err != nil {
		log.Printf("⚠️ [DISPATCH] Unparseable schedule %q (%v) — falling back to +1h", cfg, err)
		return after.Add(CronFallbackDelay)
	}
	return schedule.Next(after)
}

// RunDueSchedulers is one dispatcher cycle: fire every enabled scheduler
// whose next_run is unset or due, guarding against duplicate in-flight work
// per (source, task type). Tasks execute inline — a slow sync delays only
// this cycle's remaining schedulers, never the HTTP surface.
func (s *TaskService) RunDueSchedulers(ctx context.Context) error {
	now := s.now()

	var schedulers []models.TaskScheduler
	if err := s.DB.Where("enabled = ?", true).
		Where("next_run IS NULL OR next_run <= ?", now).
		Find(&schedulers).Error; err != nil {
		return fmt.Errorf("failed to load due schedulers: %w", err)
	}

	for i := range schedulers {
		sched := &schedulers[i]

		// Duplicate-work guard. The check-then-insert is not atomic across
		// processes; the partial unique index on (source_id, task_type) for
		// non-terminal statuses backstops the race at the storage layer.
		var active int64
		if err := s.DB.Model(&models.Task{}).
			Where("task_type = ? AND source_id = ?", sched.TaskType, sched.SourceID).
			Where("status IN ?", []models.TaskStatus{models.TaskStatusPending, models.TaskStatusRunning}).
			Count(&active).Error; err != nil {
			log.Printf("❌ [DISPATCH] Guard query failed for scheduler %s: %v", sched.ID, err)
			continue
		}
		if active > 0 {
			retry := now.Add(DuplicateRetryDelay)
			if err := s.DB.Model(sched).Update("next_run", retry).Error; err != nil {
				log.Printf("❌ [DISPATCH] Failed to postpone scheduler %s: %v", sched.ID, err)
			} else {
				log.Printf("⏳ [DISPATCH] %s/%s still in flight — scheduler %s postponed to %s",
					sched.TaskType, sched.SourceID, sched.ID, retry.Format(time.RFC3339))
			}
			continue
		}

		task := models.Task{
			ID:        uuid.NewString(),
			TaskType:  sched.TaskType,
			SourceID:  sched.SourceID,
			Status:    models.TaskStatusPending,
			Automated: true,
		}
		if err := s.DB.Create(&task).Error; err != nil {
			// A concurrent dispatcher won the unique-index race.
			retry := now.Add(DuplicateRetryDelay)
			s.DB.Model(sched).Update("next_run", retry)
			log.Printf("⚠️ [DISPATCH] Task create for scheduler %s conflicted (%v) — postponed", sched.ID, err)
			continue
		}

		next := s.NextRunAfter(sched.ScheduleConfig, now)
		if err := s.DB.Model(sched).Updates(map[string]interface{}{
			"last_run": now,
			"next_run": next,
		}).Error; err != nil {
			log.Printf("❌ [DISPATCH] Failed to stamp scheduler %s: %v", sched.ID, err)
		}

		s.ExecuteTask(ctx, &task)
	}

	return nil
}

// ExecuteTask runs one task through the dispatch table:
// pending → running → completed|failed. Logs accumulate in memory and are
// persisted once, at the terminal transition. Failed tasks are not retried —
// retry is the next scheduler fire or a manual resubmission.
func (s *TaskService) ExecuteTask(ctx context.Context, task *models.Task) {
	start := s.now()
	if err := s.DB.Model(task).Updates(map[string]interface{}{
		"status":     models.TaskStatusRunning,
		"started_at": start,
	}).Error; err != nil {
		log.Printf("❌ [DISPATCH] Failed to mark task %s running: %v", task.ID, err)
		return
	}
	task.Status = models.TaskStatusRunning

	buf := &models.TaskLogBuffer{}
	buf.Logf("task %s started (type=%s, source=%s)", task.ID, task.TaskType, task.SourceID)

	err := s.runHandler(ctx, task, buf)

	done := s.now()
	updates := map[string]interface{}{
		"completed_at": done,
	}
	if err != nil {
		buf.Logf("task failed: %v", err)
		updates["status"] = models.TaskStatusFailed
		updates["error_message"] = err.Error()
		updates["logs"] = buf.String()
		task.Status = models.TaskStatusFailed
		log.Printf("❌ [TASK] %s (%s) failed: %v", task.ID, task.TaskType, err)
	} else {
		buf.Logf("task completed in %s", done.Sub(start).Round(time.Millisecond))
		updates["status"] = models.TaskStatusCompleted
		updates["logs"] = buf.String()
		task.Status = models.TaskStatusCompleted
		log.Printf("✅ [TASK] %s (%s) completed", task.ID, task.TaskType)
	}

	if dbErr := s.DB.Model(task).Updates(updates).Error; dbErr != nil {
		log.Printf("❌ [DISPATCH] Failed to persist terminal state of task %s: %v", task.ID, dbErr)
	}
}

func (s *TaskService) runHandler(ctx context.Context, task *models.Task, buf *models.TaskLogBuffer) (err error) {
	// A panicking handler must not take the dispatcher down with it.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	handler, ok := s.handlers[task.TaskType]
	if !ok || handler == nil {
		return fmt.Errorf("no handler registered for task type %s", task.TaskType)
	}
	return handler(ctx, task, buf)
}

// CreateManualTask creates a pending task on behalf of a user (manual run or
// resubmission of failed work). The duplicate guard applies here too.
func (s *TaskService) CreateManualTask(taskType models.TaskType, sourceID, createdBy string) (*models.Task, error) {
	if _, ok := s.handlers[taskType]; !ok {
		return nil, fmt.Errorf("task type %s: %w", taskType, ErrNotFound)
	}

	var active int64
	if err := s.DB.Model(&models.Task{}).
		Where("task_type = ? AND source_id = ?", taskType, sourceID).
		Where("status IN ?", []models.TaskStatus{models.TaskStatusPending, models.TaskStatusRunning}).
		Count(&active).Error; err != nil {
		return nil, err
	}
	if active > 0 {
		return nil, fmt.Errorf("a %s task for source %s is already in flight: %w", taskType, sourceID, ErrInvalidState)
	}

	task := models.Task{
		ID:        uuid.NewString(),
		TaskType:  taskType,
		SourceID:  sourceID,
		Status:    models.TaskStatusPending,
		CreatedBy: &createdBy,
	}
	if err := s.DB.Create(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateScheduler registers a recurring task definition. The first fire time
// is computed immediately so the next dispatch cycle picks it up predictably.
func (s *TaskService) CreateScheduler(name string, taskType models.TaskType, sourceID, scheduleConfig, createdBy string) (*models.TaskScheduler, error) {
	if _, ok := s.handlers[taskType]; !ok {
		return nil, fmt.Errorf("task type %s: %w", taskType, ErrNotFound)
	}

	next := s.NextRunAfter(scheduleConfig, s.now())
	sched := models.TaskScheduler{
		ID:             uuid.NewString(),
		Name:           name,
		TaskType:       taskType,
		SourceID:       sourceID,
		ScheduleConfig: scheduleConfig,
		Enabled:        true,
		NextRun:        &next,
		CreatedBy:      &createdBy,
	}
	if err := s.DB.Create(&sched).Error; err != nil {
		return nil, err
	}
	return &sched, nil
}

// SetSchedulerEnabled toggles a scheduler. Re-enabling recomputes next_run so
// a long-disabled scheduler does not fire a backlog immediately.
func (s *TaskService) SetSchedulerEnabled(schedulerID string, enabled bool) (*models.TaskScheduler, error) {
	var sched models.TaskScheduler
	if err := s.DB.First(&sched, "id = ?", schedulerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("scheduler %s: %w", schedulerID, ErrNotFound)
		}
		return nil, err
	}

	sched.Enabled = enabled
	if enabled {
		next := s.NextRunAfter(sched.ScheduleConfig, s.now())
		sched.NextRun = &next
	}
	if err := s.DB.Save(&sched).Error; err != nil {
		return nil, err
	}
	return &sched, nil
}
