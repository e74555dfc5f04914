package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/inboxagent/sync-worker/internal/models"
)

const defaultIdleSleep = 1 * time.Second

// JobQueue is the slice of the job store the pool needs: claim one,
// resolve it.
type JobQueue interface {
	ClaimNext(ctx context.Context) (*models.Job, error)
	Complete(ctx context.Context, job *models.Job) error
	Fail(ctx context.Context, job *models.Job, message string) error
}

// UserResolver resolves the owning user of a claimed job.
type UserResolver interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
}

// Pool runs N independent worker loops against one shared queue. It is
// an owned resource: construct it at process boot, Start it, Stop it
// at shutdown.
type Pool struct {
	concurrency int
	queue       JobQueue
	users       UserResolver
	dispatcher  *Dispatcher
	idleSleep   time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

func NewPool(concurrency int, queue JobQueue, users UserResolver, dispatcher *Dispatcher) *Pool {
	if concurrency <= 0 {
		concurrency = 3
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		concurrency: concurrency,
		queue:       queue,
		users:       users,
		dispatcher:  dispatcher,
		idleSleep:   defaultIdleSleep,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the worker loops.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("worker pool already started")
	}
	p.started = true

	log.Printf("Worker pool starting with %d workers", p.concurrency)
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
	return nil
}

// Stop signals every loop and waits for all of them to exit. In-flight
// jobs run to completion; nothing is interrupted mid-handler.
func (p *Pool) Stop() {
	log.Printf("Worker pool shutting down...")
	p.cancel()
	p.wg.Wait()
	log.Printf("Worker pool stopped")
}

func (p *Pool) workerLoop(workerID int) {
	defer p.wg.Done()
	log.Printf("Worker %d started", workerID)

	for {
		select {
		case <-p.ctx.Done():
			log.Printf("Worker %d stopped", workerID)
			return
		default:
		}

		job, err := p.queue.ClaimNext(p.ctx)
		if err != nil {
			log.Printf("Worker %d claim error: %v", workerID, err)
			p.sleep()
			continue
		}
		if job == nil {
			p.sleep()
			continue
		}

		p.processJob(workerID, job)
	}
}

func (p *Pool) sleep() {
	select {
	case <-p.ctx.Done():
	case <-time.After(p.idleSleep):
	}
}

// processJob runs one claimed job to resolution. A panic inside a
// handler ends only this iteration; the loop keeps polling.
func (p *Pool) processJob(workerID int, job *models.Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Worker %d panic on job %s: %v", workerID, job.ID, r)
			if err := p.queue.Fail(context.Background(), job, fmt.Sprintf("panic: %v", r)); err != nil {
				log.Printf("Worker %d failed to record panic for job %s: %v", workerID, job.ID, err)
			}
		}
	}()

	log.Printf("Worker %d processing job %s (%s)", workerID, job.ID, job.JobType)

	user, err := p.users.GetByID(p.ctx, job.UserID)
	if err != nil {
		p.failJob(workerID, job, fmt.Sprintf("user %s not found: %v", job.UserID, err))
		return
	}

	handler, err := p.dispatcher.HandlerFor(job.JobType)
	if err != nil {
		// Configuration bug: retrying cannot help, so exhaust the
		// attempts and fail terminally.
		job.Attempts = job.MaxAttempts
		p.failJob(workerID, job, err.Error())
		return
	}

	if err := handler.Handle(p.ctx, job, user); err != nil {
		if errors.Is(err, context.Canceled) {
			// Shutdown mid-handler: put the job back for the next run.
			p.failJob(workerID, job, "interrupted by shutdown")
			return
		}
		p.failJob(workerID, job, err.Error())
		return
	}

	if err := p.queue.Complete(context.Background(), job); err != nil {
		log.Printf("Worker %d failed to complete job %s: %v", workerID, job.ID, err)
		return
	}
	log.Printf("Worker %d completed job %s", workerID, job.ID)
}

func (p *Pool) failJob(workerID int, job *models.Job, message string) {
	log.Printf("Worker %d job %s failed: %s", workerID, job.ID, message)
	if err := p.queue.Fail(context.Background(), job, message); err != nil {
		log.Printf("Worker %d failed to record failure for job %s: %v", workerID, job.ID, err)
	}
}
