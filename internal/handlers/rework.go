package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/inboxagent/sync-worker/internal/llm"
	"github.com/inboxagent/sync-worker/internal/models"
)

const reworkInstructions = "The recipient rejected the previous draft. " +
	"Write a substantially different reply: change tone and structure, keep it shorter."

// HandleRework regenerates the draft on a thread the user marked with
// the rework control label. With no existing draft it falls back to
// plain drafting.
func (h *Handlers) HandleRework(ctx context.Context, job *models.Job, user *models.User) error {
	var payload models.ReworkPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid rework payload: %w", err)
	}

	client, err := h.mailClientFor(ctx, user)
	if err != nil {
		return err
	}

	existing, err := client.FindDraftForThread(ctx, payload.ThreadID)
	if err != nil {
		return err
	}
	if existing == nil {
		log.Printf("No draft on thread %s, drafting fresh", payload.ThreadID)
		return h.draftReply(ctx, user, payload.MessageID, payload.ThreadID, reworkInstructions)
	}

	msg, err := client.GetMessage(ctx, payload.MessageID)
	if err != nil {
		return err
	}

	reply, err := h.llm.GenerateReply(ctx, llm.EmailData{
		From:    msg.From,
		Subject: msg.Subject,
		Body:    msg.BodyText,
	}, reworkInstructions)
	if err != nil {
		return fmt.Errorf("rework generation failed: %w", err)
	}

	subject := msg.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	if err := client.UpdateDraft(ctx, existing.ID, payload.ThreadID, msg.From, subject, reply); err != nil {
		return err
	}
	log.Printf("Reworked draft %s on thread %s", existing.ID, payload.ThreadID)

	// Clear the rework marker so the next label change re-triggers.
	reworkID, err := h.labels.GetLabelID(ctx, user.ID, models.LabelKeyRework)
	if err != nil {
		return err
	}
	if reworkID != "" {
		if err := client.ModifyLabels(ctx, payload.MessageID, nil, []string{reworkID}); err != nil {
			return err
		}
	}
	return nil
}
