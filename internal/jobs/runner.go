package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

// Runner owns the asynq worker and the scheduler that enqueues periodic
// maintenance on it.
type Runner struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
}

// NewRunner connects to redisURL, registers the purge handler and schedules
// it on cronspec.
func NewRunner(redisURL, cronspec string, olderThan time.Duration, purger ReadPurger) (*Runner, error) {
	if redisURL == "" {
		return nil, errors.New("asynq: redis url is empty")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	task, err := NewPurgeReadsTask(olderThan)
	if err != nil {
		return nil, err
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 2,
		Queues:      map[string]int{QueueMaintenance: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Printf("asynq task failed type=%s err=%v", task.Type(), err)
		}),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePurgeReads, HandlePurgeReads(purger))

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	entryID, err := scheduler.Register(cronspec, task)
	if err != nil {
		return nil, fmt.Errorf("asynq: schedule %s: %w", TypePurgeReads, err)
	}
	log.Printf("read purge scheduled entry=%s cron=%q older_than=%s", entryID, cronspec, olderThan)

	return &Runner{server: srv, scheduler: scheduler, mux: mux}, nil
}

// Run starts both halves and blocks until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.server.Start(r.mux); err != nil {
		return err
	}
	if err := r.scheduler.Start(); err != nil {
		r.server.Shutdown()
		return err
	}
	<-ctx.Done()
	r.scheduler.Shutdown()
	r.server.Shutdown()
	return nil
}
