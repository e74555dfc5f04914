package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/inboxagent/sync-worker/internal/models"
)

// HandleCleanup resolves lifecycle actions on a thread: "done" clears
// the control labels, "check_sent" clears them only if the user
// actually sent a reply (a deleted draft usually means it went out).
func (h *Handlers) HandleCleanup(ctx context.Context, job *models.Job, user *models.User) error {
	var payload models.CleanupPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid cleanup payload: %w", err)
	}

	client, err := h.mailClientFor(ctx, user)
	if err != nil {
		return err
	}

	switch payload.Action {
	case models.CleanupActionDone:
		return h.clearControlLabels(ctx, client, user, payload.MessageID, payload.ThreadID)

	case models.CleanupActionCheckSent:
		sent, err := client.ThreadHasSentMessage(ctx, payload.ThreadID)
		if err != nil {
			return err
		}
		if !sent {
			log.Printf("Thread %s has no sent message, leaving labels", payload.ThreadID)
			return nil
		}
		return h.clearControlLabels(ctx, client, user, payload.MessageID, payload.ThreadID)

	default:
		return fmt.Errorf("unknown cleanup action %q", payload.Action)
	}
}

type labelModifier interface {
	ModifyLabels(ctx context.Context, messageID string, add, remove []string) error
}

func (h *Handlers) clearControlLabels(ctx context.Context, client labelModifier, user *models.User, messageID, threadID string) error {
	if messageID == "" {
		// Deleted messages carry no id we can modify; nothing to do.
		log.Printf("Cleanup on thread %s has no message id, skipping label removal", threadID)
		return nil
	}

	ids, err := h.userLabelIDs(ctx, user.ID,
		models.LabelKeyNeedsResponse, models.LabelKeyOutbox, models.LabelKeyRework, models.LabelKeyWaiting)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	if err := client.ModifyLabels(ctx, messageID, nil, ids); err != nil {
		return err
	}
	log.Printf("Cleared %d control labels on thread %s", len(ids), threadID)
	return nil
}
