package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskType is the closed set of background work kinds. The dispatcher holds
// one handler per type; adding a type without a handler fails the task loudly
// instead of being skipped.
type TaskType string

const (
	TaskTypeFileUpload      TaskType = "file_upload"
	TaskTypeTriplestoreSync TaskType = "triplestore_sync"
	TaskTypeFeedSync        TaskType = "feed_sync"
	TaskTypeHarvest         TaskType = "harvest"
)

// TaskStatus lifecycle: pending → running → completed | failed. Terminal
// states are never left.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task is one executable unit of background work.
type Task struct {
	ID       string     `gorm:"primaryKey" json:"id"`
	TaskType TaskType   `gorm:"type:varchar(32);index;not null" json:"task_type"`
	SourceID string     `gorm:"index;not null" json:"source_id"`
	Status   TaskStatus `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`

	Metadata     string `gorm:"type:text" json:"metadata,omitempty"`
	Logs         string `gorm:"type:text" json:"logs,omitempty"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	// Scheduler-created tasks carry Automated=true with a NULL CreatedBy
	// instead of a "system" pseudo-user.
	CreatedBy *string `json:"created_by,omitempty"`
	Automated bool    `gorm:"default:false" json:"automated"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Timestamps
}

// TaskScheduler is a persisted definition of recurring work. ScheduleConfig
// is either a cron expression ("0 3 * * *") or a plain integer number of
// seconds ("3600"). The dispatcher owns LastRun/NextRun.
type TaskScheduler struct {
	ID             string     `gorm:"primaryKey" json:"id"`
	Name           string     `gorm:"not null" json:"name"`
	TaskType       TaskType   `gorm:"type:varchar(32);not null" json:"task_type"`
	SourceID       string     `gorm:"index;not null" json:"source_id"`
	ScheduleConfig string     `gorm:"not null" json:"schedule_config"`
	Enabled        bool       `gorm:"default:true;index" json:"enabled"`
	LastRun        *time.Time `json:"last_run,omitempty"`
	NextRun        *time.Time `json:"next_run,omitempty"`
	CreatedBy      *string    `json:"created_by,omitempty"`

	Timestamps
}

// TaskLogBuffer accumulates human-readable log lines in memory during task
// execution; the dispatcher persists the joined text once, at the terminal
// transition, to avoid a write per line.
type TaskLogBuffer struct {
	lines []string
}

// Logf appends one timestamped line.
func (b *TaskLogBuffer) Logf(format string, args ...interface{}) {
	line := fmt.Sprintf("[%s] %s", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	b.lines = append(b.lines, line)
}

// Len returns the number of buffered lines.
func (b *TaskLogBuffer) Len() int {
	return len(b.lines)
}

func (b *TaskLogBuffer) String() string {
	return strings.Join(b.lines, "\n")
}
