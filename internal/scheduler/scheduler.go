package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// PendingCounter counts pending prediction records created before cutoff.
type PendingCounter interface {
	StalePending(ctx context.Context, cutoff time.Time) (int, error)
}

// Gauge receives the latest audit result.
type Gauge interface {
	SetStalePending(n int)
}

// Scheduler periodically audits prediction records stuck in pending. It only
// reports them; records are never modified or retried.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	store      PendingCounter
	gauge      Gauge
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

// New creates a new Scheduler. gauge may be nil.
func New(store PendingCounter, gauge Gauge, interval, staleAfter time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler:  s,
		store:      store,
		gauge:      gauge,
		interval:   interval,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start schedules the audit job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		log.Println("scheduler: pending audit disabled")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 1
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := s.Audit(ctx); err != nil {
			log.Printf("scheduler: pending audit failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Audit counts pending records older than the stale threshold once.
func (s *Scheduler) Audit(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter)
	n, err := s.store.StalePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if s.gauge != nil {
		s.gauge.SetStalePending(n)
	}
	if n > 0 {
		log.Printf("WARN: scheduler: %d prediction records pending since before %s", n, cutoff.Format(time.RFC3339))
	} else {
		log.Println("scheduler: no stale pending predictions")
	}
	return n, nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
