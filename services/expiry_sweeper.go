package services

import (
	"context"
	"log"
	"time"
)

// ExpirySweeper runs ExpireOverdue on a fixed interval. Deadlines are only
// enforced when it runs; nothing else waits on them.
type ExpirySweeper struct {
	submissions *SubmissionService
	interval    time.Duration
}

func NewExpirySweeper(submissions *SubmissionService, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{submissions: submissions, interval: interval}
}

// SweepOnce runs a single expiry pass and logs what it did.
func (w *ExpirySweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := w.submissions.ExpireOverdue(ctx)
	if err != nil {
		log.Printf("expiry sweep failed: %v", err)
		return 0, err
	}
	if n > 0 {
		log.Printf("expiry sweep expired %d submission(s)", n)
	}
	return n, nil
}

// Run sweeps immediately and then on every tick until ctx is done. Sweep
// errors are logged and do not stop the loop.
func (w *ExpirySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	_, _ = w.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = w.SweepOnce(ctx)
		}
	}
}
