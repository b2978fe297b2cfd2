package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"manuscript-review-api/models"

	"golang.org/x/sync/errgroup"
)

// JobHandler executes one job. A returned error marks the job failed.
type JobHandler func(ctx context.Context, job models.Job) error

// JobWorker consumes the queue with bounded concurrency. Only job types with
// a registered handler are touched; other types are left for workers in
// other processes.
type JobWorker struct {
	queue       *JobQueue
	concurrency int
	interval    time.Duration

	mu       sync.RWMutex
	handlers map[string]JobHandler
}

func NewJobWorker(queue *JobQueue, concurrency int, interval time.Duration) *JobWorker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &JobWorker{
		queue:       queue,
		concurrency: concurrency,
		interval:    interval,
		handlers:    make(map[string]JobHandler),
	}
}

// Register installs the handler for a job type.
func (w *JobWorker) Register(jobType string, h JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = h
}

func (w *JobWorker) handler(jobType string) (JobHandler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[jobType]
	return h, ok
}

// Recover re-runs jobs left running by a crashed process. Handlers must
// tolerate being run more than once.
func (w *JobWorker) Recover(ctx context.Context) (int, error) {
	return w.dispatch(ctx, models.JobRunning)
}

// Poll claims and runs the queued jobs this worker can handle.
func (w *JobWorker) Poll(ctx context.Context) (int, error) {
	return w.dispatch(ctx, models.JobQueued)
}

// Run recovers once and then polls on every tick until ctx is done.
func (w *JobWorker) Run(ctx context.Context) error {
	if n, err := w.Recover(ctx); err != nil {
		log.Printf("job recovery failed: %v", err)
	} else if n > 0 {
		log.Printf("job recovery re-ran %d job(s)", n)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Poll(ctx); err != nil {
				log.Printf("job poll failed: %v", err)
			}
		}
	}
}

func (w *JobWorker) dispatch(ctx context.Context, status models.JobStatus) (int, error) {
	jobs, err := w.queue.PendingJobs(ctx)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	var (
		mu  sync.Mutex
		ran int
	)
	for _, job := range jobs {
		if job.Status != status {
			continue
		}
		h, ok := w.handler(job.JobType)
		if !ok {
			continue
		}
		if status == models.JobQueued {
			claimed, err := w.queue.Claim(gctx, job.ID)
			if err != nil {
				log.Printf("claim job %s failed: %v", job.ID, err)
				continue
			}
			if !claimed {
				continue
			}
		}

		job := job
		g.Go(func() error {
			w.execute(gctx, h, job)
			mu.Lock()
			ran++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return ran, nil
}

func (w *JobWorker) execute(ctx context.Context, h JobHandler, job models.Job) {
	status := models.JobCompleted
	if err := runHandler(ctx, h, job); err != nil {
		status = models.JobFailed
		log.Printf("job %s (%s) for project %s failed: %v", job.ID, job.JobType, job.ProjectID, err)
	}
	// Finish even if ctx was cancelled mid-run so the outcome is not lost.
	if err := w.queue.Complete(persistentContext(ctx), job.ID, status); err != nil {
		log.Printf("failed to mark job %s %s: %v", job.ID, status, err)
	}
}

func runHandler(ctx context.Context, h JobHandler, job models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}
