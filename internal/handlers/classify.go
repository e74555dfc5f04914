package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/inboxagent/sync-worker/internal/llm"
	"github.com/inboxagent/sync-worker/internal/models"
)

// categoryLabelKeys maps classifier categories to control label keys.
// "ignore" maps to nothing on purpose.
var categoryLabelKeys = map[string]string{
	llm.CategoryNeedsResponse:  models.LabelKeyNeedsResponse,
	llm.CategoryActionRequired: "action_required",
	llm.CategoryFYI:            models.LabelKeyFYI,
	llm.CategoryWaiting:        models.LabelKeyWaiting,
}

// HandleClassify categorizes one inbound message, applies the mapped
// control label, and enqueues a draft job when a response is expected.
// Re-delivery is safe: a message already carrying a control label is
// skipped.
func (h *Handlers) HandleClassify(ctx context.Context, job *models.Job, user *models.User) error {
	var payload models.ClassifyPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid classify payload: %w", err)
	}

	client, err := h.mailClientFor(ctx, user)
	if err != nil {
		return err
	}

	msg, err := client.GetMessage(ctx, payload.MessageID)
	if err != nil {
		return err
	}

	already, err := h.alreadyLabeled(ctx, user.ID, msg.LabelIDs)
	if err != nil {
		return err
	}
	if already {
		log.Printf("Message %s already classified, skipping", payload.MessageID)
		return nil
	}

	result, err := h.llm.ClassifyEmail(ctx, llm.EmailData{
		From:    msg.From,
		Subject: msg.Subject,
		Body:    msg.BodyText,
	})
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	log.Printf("Classified message %s as %s (%.2f)", payload.MessageID, result.Category, result.Confidence)

	if key, ok := categoryLabelKeys[result.Category]; ok {
		labelID, err := h.labels.GetLabelID(ctx, user.ID, key)
		if err != nil {
			return err
		}
		if labelID != "" {
			if err := client.ModifyLabels(ctx, payload.MessageID, []string{labelID}, nil); err != nil {
				return err
			}
		}
	}

	if result.Category == llm.CategoryNeedsResponse {
		if _, err := h.jobs.Enqueue(ctx, user.ID, models.JobTypeDraft, models.DraftPayload{
			MessageID: payload.MessageID,
			ThreadID:  payload.ThreadID,
		}); err != nil {
			return fmt.Errorf("failed to enqueue draft job: %w", err)
		}
	}

	return nil
}

// alreadyLabeled reports whether the message carries any of the user's
// control labels.
func (h *Handlers) alreadyLabeled(ctx context.Context, userID string, messageLabels []string) (bool, error) {
	mapped, err := h.labels.ListByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, l := range mapped {
		for _, id := range messageLabels {
			if id == l.ProviderLabelID {
				return true, nil
			}
		}
	}
	return false, nil
}
