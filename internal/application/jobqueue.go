package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job is a unit of background work. Jobs run to completion; there is no
// preemption and no automatic retry. Each job owns its error handling, which
// by convention ends in an error finalize that notifies subscribers.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// JobQueue is an in-process worker pool feeding jobs to N workers through a
// buffered channel. Enqueue never blocks HTTP handlers as long as the buffer
// has room.
type JobQueue struct {
	jobs    chan Job
	workers int
	wg      sync.WaitGroup
}

// NewJobQueue creates a queue with the given worker count and buffer size.
func NewJobQueue(workers, buffer int) *JobQueue {
	if workers < 1 {
		workers = 1
	}
	return &JobQueue{
		jobs:    make(chan Job, buffer),
		workers: workers,
	}
}

// Start launches the workers. They drain the queue until the context is
// canceled, then exit; Wait blocks until all workers have stopped.
func (q *JobQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (q *JobQueue) Wait() {
	q.wg.Wait()
}

// Enqueue submits a job for execution. Returns an error when the queue is
// full rather than blocking the caller.
func (q *JobQueue) Enqueue(job Job) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("job queue full, rejected %s", job.Name)
	}
}

// Len reports the number of jobs waiting in the buffer.
func (q *JobQueue) Len() int {
	return len(q.jobs)
}

func (q *JobQueue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			slog.Info("job worker stopped", "worker", id)
			return
		case job := <-q.jobs:
			q.runJob(ctx, id, job)
		}
	}
}

// runJob executes one job with panic recovery. A panicking job is logged and
// swallowed so the worker survives.
func (q *JobQueue) runJob(ctx context.Context, worker int, job Job) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("job panicked", "job", job.Name, "worker", worker, "panic", r)
		}
	}()

	if err := job.Run(ctx); err != nil {
		slog.Error("job failed", "job", job.Name, "worker", worker,
			"duration", time.Since(start).Round(time.Millisecond), "error", err)
		return
	}

	slog.Info("job complete", "job", job.Name, "worker", worker,
		"duration", time.Since(start).Round(time.Millisecond))
}
