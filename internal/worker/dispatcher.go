package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/inboxagent/sync-worker/internal/models"
)

// ErrUnknownJobType marks a dispatch miss. It is a configuration bug,
// not a transient failure, so jobs hitting it are failed terminally.
var ErrUnknownJobType = errors.New("unknown job type")

// Handler executes one job for one user. Handlers must tolerate
// re-invocation: the queue delivers at least once.
type Handler interface {
	Handle(ctx context.Context, job *models.Job, user *models.User) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *models.Job, user *models.User) error

func (f HandlerFunc) Handle(ctx context.Context, job *models.Job, user *models.User) error {
	return f(ctx, job, user)
}

// Dispatcher is a pure job_type -> handler table.
type Dispatcher struct {
	handlers map[models.JobType]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[models.JobType]Handler)}
}

// Register binds a handler to a job type, replacing any previous
// binding.
func (d *Dispatcher) Register(jobType models.JobType, h Handler) {
	d.handlers[jobType] = h
}

// HandlerFor looks up the handler for a job type.
func (d *Dispatcher) HandlerFor(jobType models.JobType) (Handler, error) {
	h, ok := d.handlers[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
	}
	return h, nil
}
