package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/inboxagent/sync-worker/internal/models"
)

// memoryQueue is an in-memory queue implementing the pool's claim
// protocol: a job is handed to exactly one claimant and retried until
// attempts run out.
type memoryQueue struct {
	mu   sync.Mutex
	jobs []*models.Job

	completed []string
	failures  []string
}

func newMemoryQueue(jobs ...*models.Job) *memoryQueue {
	return &memoryQueue{jobs: jobs}
}

func (q *memoryQueue) ClaimNext(ctx context.Context) (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.jobs {
		if job.Status == models.JobStatusPending {
			job.Status = models.JobStatusRunning
			job.Attempts++
			now := time.Now()
			job.StartedAt = &now
			return job, nil
		}
	}
	return nil, nil
}

func (q *memoryQueue) Complete(ctx context.Context, job *models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Status = models.JobStatusCompleted
	q.completed = append(q.completed, job.ID)
	return nil
}

func (q *memoryQueue) Fail(ctx context.Context, job *models.Job, message string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failures = append(q.failures, message)
	job.ErrorMessage = &message
	if job.AttemptsLeft() {
		job.Status = models.JobStatusPending
	} else {
		job.Status = models.JobStatusFailed
	}
	return nil
}

func (q *memoryQueue) statusOf(id string) models.JobStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.jobs {
		if job.ID == id {
			return job.Status
		}
	}
	return ""
}

func (q *memoryQueue) allTerminal() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range q.jobs {
		if !job.Terminal() {
			return false
		}
	}
	return true
}

type staticUsers struct {
	err error
}

func (s *staticUsers) GetByID(ctx context.Context, userID string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.User{ID: userID, Active: true}, nil
}

func testJob(id string, jobType models.JobType, maxAttempts int) *models.Job {
	return &models.Job{
		ID:          id,
		UserID:      "u1",
		JobType:     jobType,
		Status:      models.JobStatusPending,
		Payload:     []byte("{}"),
		MaxAttempts: maxAttempts,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func startPool(t *testing.T, concurrency int, queue JobQueue, dispatcher *Dispatcher) *Pool {
	t.Helper()
	pool := NewPool(concurrency, queue, &staticUsers{}, dispatcher)
	pool.idleSleep = 10 * time.Millisecond
	if err := pool.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Stop)
	return pool
}

func TestPoolProcessesJobExactlyOnce(t *testing.T) {
	var mu sync.Mutex
	handled := make(map[string]int)

	dispatcher := NewDispatcher()
	dispatcher.Register(models.JobTypeClassify, HandlerFunc(func(ctx context.Context, job *models.Job, user *models.User) error {
		mu.Lock()
		handled[job.ID]++
		mu.Unlock()
		return nil
	}))

	jobs := []*models.Job{
		testJob("j1", models.JobTypeClassify, 3),
		testJob("j2", models.JobTypeClassify, 3),
		testJob("j3", models.JobTypeClassify, 3),
	}
	queue := newMemoryQueue(jobs...)
	startPool(t, 4, queue, dispatcher)

	waitFor(t, queue.allTerminal, "jobs did not finish")

	mu.Lock()
	defer mu.Unlock()
	for _, job := range jobs {
		if handled[job.ID] != 1 {
			t.Errorf("job %s handled %d times, want 1", job.ID, handled[job.ID])
		}
		if queue.statusOf(job.ID) != models.JobStatusCompleted {
			t.Errorf("job %s status %s, want completed", job.ID, queue.statusOf(job.ID))
		}
	}
}

func TestPoolRetriesUntilAttemptsExhausted(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	dispatcher := NewDispatcher()
	dispatcher.Register(models.JobTypeSync, HandlerFunc(func(ctx context.Context, job *models.Job, user *models.User) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("provider unavailable")
	}))

	queue := newMemoryQueue(testJob("j1", models.JobTypeSync, 3))
	startPool(t, 1, queue, dispatcher)

	waitFor(t, queue.allTerminal, "job never reached terminal state")

	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Errorf("handler called %d times, want 3", calls)
	}
	if queue.statusOf("j1") != models.JobStatusFailed {
		t.Errorf("job status %s, want failed", queue.statusOf("j1"))
	}
}

func TestPoolSingleAttemptJobFailsTerminally(t *testing.T) {
	dispatcher := NewDispatcher()
	dispatcher.Register(models.JobTypeSync, HandlerFunc(func(ctx context.Context, job *models.Job, user *models.User) error {
		return errors.New("boom")
	}))

	queue := newMemoryQueue(testJob("j1", models.JobTypeSync, 1))
	startPool(t, 1, queue, dispatcher)

	waitFor(t, queue.allTerminal, "job never reached terminal state")
	if queue.statusOf("j1") != models.JobStatusFailed {
		t.Errorf("job status %s, want failed", queue.statusOf("j1"))
	}
}

func TestPoolUnknownJobTypeFailsTerminally(t *testing.T) {
	queue := newMemoryQueue(testJob("j1", "teleport", 3))
	startPool(t, 1, queue, NewDispatcher())

	waitFor(t, queue.allTerminal, "job never reached terminal state")
	if queue.statusOf("j1") != models.JobStatusFailed {
		t.Errorf("job status %s, want failed without retries", queue.statusOf("j1"))
	}
	queue.mu.Lock()
	defer queue.mu.Unlock()
	if len(queue.failures) != 1 {
		t.Errorf("expected exactly one failure record, got %d", len(queue.failures))
	}
}

func TestPoolSurvivesHandlerPanic(t *testing.T) {
	dispatcher := NewDispatcher()
	dispatcher.Register(models.JobTypeClassify, HandlerFunc(func(ctx context.Context, job *models.Job, user *models.User) error {
		if job.ID == "j-panic" {
			panic("handler exploded")
		}
		return nil
	}))

	queue := newMemoryQueue(
		testJob("j-panic", models.JobTypeClassify, 1),
		testJob("j-ok", models.JobTypeClassify, 1),
	)
	startPool(t, 1, queue, dispatcher)

	waitFor(t, queue.allTerminal, "jobs never reached terminal state")
	if queue.statusOf("j-panic") != models.JobStatusFailed {
		t.Errorf("panicking job status %s, want failed", queue.statusOf("j-panic"))
	}
	if queue.statusOf("j-ok") != models.JobStatusCompleted {
		t.Errorf("healthy job status %s, want completed", queue.statusOf("j-ok"))
	}
}

func TestPoolFailsJobWhenUserMissing(t *testing.T) {
	dispatcher := NewDispatcher()
	dispatcher.Register(models.JobTypeClassify, HandlerFunc(func(ctx context.Context, job *models.Job, user *models.User) error {
		t.Error("handler must not run for missing user")
		return nil
	}))

	queue := newMemoryQueue(testJob("j1", models.JobTypeClassify, 1))
	pool := NewPool(1, queue, &staticUsers{err: errors.New("user not found")}, dispatcher)
	pool.idleSleep = 10 * time.Millisecond
	if err := pool.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Stop)

	waitFor(t, queue.allTerminal, "job never reached terminal state")
	if queue.statusOf("j1") != models.JobStatusFailed {
		t.Errorf("job status %s, want failed", queue.statusOf("j1"))
	}
}

func TestPoolStopWaitsForWorkers(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	dispatcher := NewDispatcher()
	dispatcher.Register(models.JobTypeClassify, HandlerFunc(func(ctx context.Context, job *models.Job, user *models.User) error {
		close(started)
		<-release
		return nil
	}))

	queue := newMemoryQueue(testJob("j1", models.JobTypeClassify, 3))
	pool := NewPool(1, queue, &staticUsers{}, dispatcher)
	pool.idleSleep = 10 * time.Millisecond
	if err := pool.Start(); err != nil {
		t.Fatal(err)
	}

	<-started

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a handler was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return after handler finished")
	}

	if queue.statusOf("j1") != models.JobStatusCompleted {
		t.Errorf("in-flight job status %s, want completed", queue.statusOf("j1"))
	}
}

func TestPoolStartTwiceFails(t *testing.T) {
	pool := NewPool(1, newMemoryQueue(), &staticUsers{}, NewDispatcher())
	pool.idleSleep = 10 * time.Millisecond
	if err := pool.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Stop)

	if err := pool.Start(); err == nil {
		t.Fatal("expected second Start to fail")
	}
}
