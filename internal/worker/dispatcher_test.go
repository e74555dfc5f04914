package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/inboxagent/sync-worker/internal/models"
)

func TestDispatcherRegisterAndLookup(t *testing.T) {
	d := NewDispatcher()
	called := false
	d.Register(models.JobTypeSync, HandlerFunc(func(ctx context.Context, job *models.Job, user *models.User) error {
		called = true
		return nil
	}))

	h, err := d.HandlerFor(models.JobTypeSync)
	if err != nil {
		t.Fatalf("HandlerFor failed: %v", err)
	}
	if err := h.Handle(context.Background(), &models.Job{}, &models.User{}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !called {
		t.Error("registered handler was not invoked")
	}
}

func TestDispatcherUnknownType(t *testing.T) {
	d := NewDispatcher()

	_, err := d.HandlerFor("teleport")
	if err == nil {
		t.Fatal("expected error for unknown job type")
	}
	if !errors.Is(err, ErrUnknownJobType) {
		t.Errorf("expected ErrUnknownJobType, got %v", err)
	}
}

func TestDispatcherReplacesBinding(t *testing.T) {
	d := NewDispatcher()
	d.Register(models.JobTypeSync, HandlerFunc(func(ctx context.Context, job *models.Job, user *models.User) error {
		return errors.New("old handler")
	}))
	d.Register(models.JobTypeSync, HandlerFunc(func(ctx context.Context, job *models.Job, user *models.User) error {
		return nil
	}))

	h, err := d.HandlerFor(models.JobTypeSync)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Handle(context.Background(), &models.Job{}, &models.User{}); err != nil {
		t.Errorf("expected replacement handler to run, got %v", err)
	}
}
