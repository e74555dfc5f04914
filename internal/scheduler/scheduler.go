package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/inboxagent/sync-worker/internal/models"
)

// UserLister enumerates the mailboxes the scheduler drives.
type UserLister interface {
	ListActiveOnboarded(ctx context.Context) ([]models.User, error)
}

// JobEnqueuer inserts sync jobs.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, userID string, jobType models.JobType, payload interface{}) (*models.Job, error)
}

// WatchRenewer re-registers push subscriptions nearing expiry.
type WatchRenewer interface {
	RenewAll(ctx context.Context) error
}

// Intervals configures the three periodic actions.
type Intervals struct {
	FallbackSync time.Duration // enqueue sync for every mailbox (push notifications may have been missed)
	FullSync     time.Duration // enqueue forced full sync for every mailbox
	WatchRenewal time.Duration // renew push-subscription leases
}

// Scheduler runs three independent periodic actions, each fault
// isolated: a failing tick is logged and the ticker keeps going.
type Scheduler struct {
	users     UserLister
	jobs      JobEnqueuer
	watches   WatchRenewer
	intervals Intervals

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

func New(users UserLister, jobs JobEnqueuer, watches WatchRenewer, intervals Intervals) *Scheduler {
	if intervals.FallbackSync <= 0 {
		intervals.FallbackSync = 15 * time.Minute
	}
	if intervals.FullSync <= 0 {
		intervals.FullSync = 1 * time.Hour
	}
	if intervals.WatchRenewal <= 0 {
		intervals.WatchRenewal = 24 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		users:     users,
		jobs:      jobs,
		watches:   watches,
		intervals: intervals,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the tickers.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true

	log.Printf("Scheduler starting (fallback %s, full %s, watch %s)",
		s.intervals.FallbackSync, s.intervals.FullSync, s.intervals.WatchRenewal)

	s.runEvery(s.intervals.FallbackSync, "fallback sync", func(ctx context.Context) error {
		return s.enqueueSyncForAllUsers(ctx, false)
	})
	s.runEvery(s.intervals.FullSync, "full sync", func(ctx context.Context) error {
		return s.enqueueSyncForAllUsers(ctx, true)
	})
	s.runEvery(s.intervals.WatchRenewal, "watch renewal", func(ctx context.Context) error {
		return s.watches.RenewAll(ctx)
	})
	return nil
}

// Stop signals the tickers and waits for them to exit.
func (s *Scheduler) Stop() {
	log.Printf("Scheduler shutting down...")
	s.cancel()
	s.wg.Wait()
	log.Printf("Scheduler stopped")
}

func (s *Scheduler) runEvery(interval time.Duration, name string, tick func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if err := s.runTick(name, tick); err != nil {
					log.Printf("Scheduler: %s tick failed: %v", name, err)
				}
			}
		}
	}()
}

// runTick executes one tick with panic isolation: a panicking tick
// body is recorded as a failure, and the ticker keeps going.
func (s *Scheduler) runTick(name string, tick func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s tick panicked: %v", name, r)
		}
	}()
	return tick(s.ctx)
}

// enqueueSyncForAllUsers enqueues one sync job per active mailbox.
// Users are processed independently: one failure is logged and the
// rest still get their job.
func (s *Scheduler) enqueueSyncForAllUsers(ctx context.Context, forceFull bool) error {
	users, err := s.users.ListActiveOnboarded(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	for i := range users {
		user := &users[i]
		payload := models.SyncPayload{ForceFull: forceFull}
		if _, err := s.jobs.Enqueue(ctx, user.ID, models.JobTypeSync, payload); err != nil {
			log.Printf("Scheduler: failed to enqueue sync for user %s: %v", user.ID, err)
		}
	}
	return nil
}
