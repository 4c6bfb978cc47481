// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartDispatchScheduler runs the dispatcher poll loop: every pollInterval it
// fires the schedulers that have come due. Returns the scheduler so the
// caller can shut it down.
func (s *TaskService) StartDispatchScheduler(ctx context.Context, pollInterval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(pollInterval),
		gocron.NewTask(func() {
			if err := s.RunDueSchedulers(ctx); err != nil {
				log.Printf("[Dispatcher] cycle error: %v", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	log.Printf("✅ Task dispatcher polling every %s", pollInterval)
	return sched, nil
}
