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

// HandleDraft generates a reply draft for a thread the classifier
// flagged as needing a response.
func (h *Handlers) HandleDraft(ctx context.Context, job *models.Job, user *models.User) error {
	var payload models.DraftPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid draft payload: %w", err)
	}
	return h.draftReply(ctx, user, payload.MessageID, payload.ThreadID, "")
}

// HandleManualDraft is the same drafting path, triggered by the user
// applying the needs-response control label by hand.
func (h *Handlers) HandleManualDraft(ctx context.Context, job *models.Job, user *models.User) error {
	var payload models.DraftPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid manual draft payload: %w", err)
	}
	return h.draftReply(ctx, user, payload.MessageID, payload.ThreadID, "")
}

// draftReply creates a reply draft on the thread and applies the
// outbox label. A thread that already has a draft is skipped, which
// makes re-delivery safe.
func (h *Handlers) draftReply(ctx context.Context, user *models.User, messageID, threadID, instructions string) error {
	client, err := h.mailClientFor(ctx, user)
	if err != nil {
		return err
	}

	existing, err := client.FindDraftForThread(ctx, threadID)
	if err != nil {
		return err
	}
	if existing != nil {
		log.Printf("Thread %s already has draft %s, skipping", threadID, existing.ID)
		return nil
	}

	msg, err := client.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	reply, err := h.llm.GenerateReply(ctx, llm.EmailData{
		From:    msg.From,
		Subject: msg.Subject,
		Body:    msg.BodyText,
	}, instructions)
	if err != nil {
		return fmt.Errorf("draft generation failed: %w", err)
	}

	subject := msg.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	draft, err := client.CreateDraft(ctx, threadID, msg.From, subject, reply)
	if err != nil {
		return err
	}
	log.Printf("Created draft %s on thread %s", draft.ID, threadID)

	outboxID, err := h.labels.GetLabelID(ctx, user.ID, models.LabelKeyOutbox)
	if err != nil {
		return err
	}
	if outboxID != "" {
		if err := client.ModifyLabels(ctx, messageID, []string{outboxID}, nil); err != nil {
			return err
		}
	}
	return nil
}
