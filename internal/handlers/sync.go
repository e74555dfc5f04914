package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/inboxagent/sync-worker/internal/models"
	"github.com/inboxagent/sync-worker/internal/syncer"
)

// HandleSync reconciles the user's mailbox against the provider change
// log, emitting downstream jobs and advancing the watermark.
func (h *Handlers) HandleSync(ctx context.Context, job *models.Job, user *models.User) error {
	var payload models.SyncPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid sync payload: %w", err)
	}

	client, err := h.mailClientFor(ctx, user)
	if err != nil {
		return err
	}

	engine := syncer.NewEngine(user, client, h.jobs, h.states, h.labels, h.router, h.engineOptions())
	return engine.Perform(ctx, payload.HistoryID, payload.ForceFull)
}
