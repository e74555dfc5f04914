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

// HandleAgentProcess handles a message the router sent to an agent
// profile instead of the classify pipeline. The profile shapes the
// generated reply; the result lands as a draft like the pipeline's.
func (h *Handlers) HandleAgentProcess(ctx context.Context, job *models.Job, user *models.User) error {
	var payload models.AgentProcessPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid agent payload: %w", err)
	}

	client, err := h.mailClientFor(ctx, user)
	if err != nil {
		return err
	}

	existing, err := client.FindDraftForThread(ctx, payload.ThreadID)
	if err != nil {
		return err
	}
	if existing != nil {
		log.Printf("Agent: thread %s already has draft %s, skipping", payload.ThreadID, existing.ID)
		return nil
	}

	msg, err := client.GetMessage(ctx, payload.MessageID)
	if err != nil {
		return err
	}

	instructions := fmt.Sprintf("Answer as the %q agent profile. Follow that profile's conventions.", payload.Profile)
	reply, err := h.llm.GenerateReply(ctx, llm.EmailData{
		From:    msg.From,
		Subject: msg.Subject,
		Body:    msg.BodyText,
	}, instructions)
	if err != nil {
		return fmt.Errorf("agent generation failed: %w", err)
	}

	subject := msg.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	draft, err := client.CreateDraft(ctx, payload.ThreadID, msg.From, subject, reply)
	if err != nil {
		return err
	}
	log.Printf("Agent %s created draft %s on thread %s (rule %s)", payload.Profile, draft.ID, payload.ThreadID, payload.RouteRule)

	outboxID, err := h.labels.GetLabelID(ctx, user.ID, models.LabelKeyOutbox)
	if err != nil {
		return err
	}
	if outboxID != "" {
		if err := client.ModifyLabels(ctx, payload.MessageID, []string{outboxID}, nil); err != nil {
			return err
		}
	}
	return nil
}
