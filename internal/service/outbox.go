package service

import (
	"context"
	"therapyroom/internal/metrics"
	"time"

	"github.com/rs/zerolog/log"
)

// Job is one unit of background work
type Job func(ctx context.Context) error

type queuedJob struct {
	label string
	run   Job
}

// Outbox runs side-effect jobs in FIFO order on one goroutine. Enqueue never
// blocks; when the queue is full the job is dropped.
type Outbox struct {
	name       string
	jobs       chan queuedJob
	jobTimeout time.Duration
}

// NewOutbox creates an outbox holding up to size pending jobs
func NewOutbox(name string, size int) *Outbox {
	if size < 1 {
		size = 1
	}
	return &Outbox{
		name:       name,
		jobs:       make(chan queuedJob, size),
		jobTimeout: 10 * time.Second,
	}
}

// Enqueue schedules job and reports whether it was accepted.
func (o *Outbox) Enqueue(label string, job Job) bool {
	select {
	case o.jobs <- queuedJob{label: label, run: job}:
		return true
	default:
		metrics.OutboxDropped.WithLabelValues(o.name).Inc()
		log.Warn().Str("outbox", o.name).Str("job", label).Msg("outbox full, dropping job")
		return false
	}
}

// Pending returns the number of queued jobs.
func (o *Outbox) Pending() int {
	return len(o.jobs)
}

// Run processes jobs until ctx is cancelled. Job errors are logged.
func (o *Outbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := len(o.jobs); n > 0 {
				log.Warn().Str("outbox", o.name).Int("pending", n).Msg("outbox stopped with pending jobs")
			}
			return
		case j := <-o.jobs:
			o.exec(ctx, j)
		}
	}
}

func (o *Outbox) exec(ctx context.Context, j queuedJob) {
	jobCtx, cancel := context.WithTimeout(ctx, o.jobTimeout)
	defer cancel()
	if err := j.run(jobCtx); err != nil {
		log.Error().Err(err).Str("outbox", o.name).Str("job", j.label).Msg("background job failed")
	}
}
