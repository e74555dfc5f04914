package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/inboxagent/sync-worker/internal/models"
	"github.com/inboxagent/sync-worker/internal/repository"
)

const inboxLabelID = "INBOX"

// JobEnqueuer is the slice of the job queue the engine writes to.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, userID string, jobType models.JobType, payload interface{}) (*models.Job, error)
	HasActiveJobForThread(ctx context.Context, userID string, jobTypes []models.JobType, threadID string) (bool, error)
}

// StateStore persists the per-mailbox watermark.
type StateStore interface {
	GetByUser(ctx context.Context, userID string) (*models.SyncState, error)
	AdvanceWatermark(ctx context.Context, userID, historyID string) (*models.SyncState, error)
}

// LabelResolver maps control label keys to provider label ids.
type LabelResolver interface {
	GetLabelID(ctx context.Context, userID, labelKey string) (string, error)
	ListByUser(ctx context.Context, userID string) ([]models.UserLabel, error)
}

// Options are the reconciliation policy knobs.
type Options struct {
	HistoryPageSize     int64
	FullSyncDays        int
	FullSyncMaxMessages int64
	StaleWatermark      time.Duration
}

// Engine reconciles one mailbox against the provider change log and
// emits downstream jobs. One instance handles one user for one pass.
type Engine struct {
	user     *models.User
	provider Provider
	jobs     JobEnqueuer
	states   StateStore
	labels   LabelResolver
	router   Router
	opts     Options
}

func NewEngine(user *models.User, provider Provider, jobs JobEnqueuer, states StateStore, labels LabelResolver, router Router, opts Options) *Engine {
	if opts.HistoryPageSize <= 0 {
		opts.HistoryPageSize = 100
	}
	if opts.FullSyncDays <= 0 {
		opts.FullSyncDays = 10
	}
	if opts.FullSyncMaxMessages <= 0 {
		opts.FullSyncMaxMessages = 50
	}
	if opts.StaleWatermark <= 0 {
		opts.StaleWatermark = 30 * 24 * time.Hour
	}
	return &Engine{
		user:     user,
		provider: provider,
		jobs:     jobs,
		states:   states,
		labels:   labels,
		router:   router,
		opts:     opts,
	}
}

// dedupKey collapses multiple change-log entries into at most one job
// of a given type per thread within a single pass.
type dedupKey struct {
	jobType  models.JobType
	threadID string
}

// Perform runs one reconciliation pass. Incremental sync resumes from
// the stored watermark (or the hint); full sync rescans recent inbox
// state when the mailbox has never synced, the watermark is stale, or
// the caller forces it.
func (e *Engine) Perform(ctx context.Context, historyIDHint string, forceFull bool) error {
	state, err := e.states.GetByUser(ctx, e.user.ID)
	if err != nil && !errors.Is(err, repository.ErrSyncStateNotFound) {
		return fmt.Errorf("failed to load sync state: %w", err)
	}

	if forceFull || state == nil || !state.Synced() || state.StaleSince(e.opts.StaleWatermark, time.Now()) {
		return e.fullSync(ctx)
	}

	start := state.LastHistoryID
	if historyIDHint != "" {
		start = historyIDHint
	}

	err = e.incrementalSync(ctx, start)
	if errors.Is(err, ErrStaleWatermark) {
		log.Printf("Watermark stale for user %s, falling back to full sync", e.user.ID)
		return e.fullSync(ctx)
	}
	return err
}

// incrementalSync pages through the change log from the given cursor,
// in provider order, and advances the watermark only after every page
// of the pass was consumed.
func (e *Engine) incrementalSync(ctx context.Context, startHistoryID string) error {
	log.Printf("Starting incremental sync for user %s from history id %s", e.user.ID, startHistoryID)

	seen := make(map[dedupKey]struct{})
	newest := startHistoryID
	pageToken := ""

	for {
		page, err := e.provider.ListHistory(ctx, startHistoryID, e.opts.HistoryPageSize, pageToken)
		if err != nil {
			return err
		}

		if page.HistoryID != "" {
			newest = page.HistoryID
		}

		for i := range page.Records {
			if err := e.processRecord(ctx, &page.Records[i], seen); err != nil {
				return err
			}
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	if _, err := e.states.AdvanceWatermark(ctx, e.user.ID, newest); err != nil {
		return err
	}

	log.Printf("Incremental sync completed for user %s, new history id %s", e.user.ID, newest)
	return nil
}

func (e *Engine) processRecord(ctx context.Context, record *HistoryRecord, seen map[dedupKey]struct{}) error {
	for _, added := range record.MessagesAdded {
		if !containsLabel(added.LabelIDs, inboxLabelID) {
			continue
		}
		if err := e.enqueueInbound(ctx, added.Message, seen); err != nil {
			return err
		}
	}

	for _, change := range record.LabelsAdded {
		if err := e.processLabelChange(ctx, change, seen); err != nil {
			return err
		}
	}

	for _, deleted := range record.MessagesDeleted {
		e.enqueueOnce(ctx, seen, models.JobTypeCleanup, deleted.ThreadID, models.CleanupPayload{
			ThreadID:  deleted.ThreadID,
			Action:    models.CleanupActionCheckSent,
			MessageID: deleted.ID,
		})
	}

	return nil
}

// enqueueInbound routes a newly arrived message to the classify
// pipeline or to an agent profile.
func (e *Engine) enqueueInbound(ctx context.Context, ref MessageRef, seen map[dedupKey]struct{}) error {
	// Routing rules match on sender and subject, so the full message
	// is fetched before deciding.
	msg, err := e.provider.GetMessage(ctx, ref.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch message %s for routing: %w", ref.ID, err)
	}

	route := RouteResult{Route: RoutePipeline}
	if e.router != nil {
		route = e.router.Route(msg)
	}

	if route.Route == RouteAgent {
		e.enqueueOnce(ctx, seen, models.JobTypeAgentProcess, ref.ThreadID, models.AgentProcessPayload{
			MessageID: ref.ID,
			ThreadID:  ref.ThreadID,
			Profile:   route.Profile,
			RouteRule: route.Rule,
		})
		return nil
	}

	e.enqueueOnce(ctx, seen, models.JobTypeClassify, ref.ThreadID, models.ClassifyPayload{
		MessageID: ref.ID,
		ThreadID:  ref.ThreadID,
	})
	return nil
}

func (e *Engine) processLabelChange(ctx context.Context, change LabelAdded, seen map[dedupKey]struct{}) error {
	threadID := change.Message.ThreadID

	doneID, err := e.labels.GetLabelID(ctx, e.user.ID, models.LabelKeyDone)
	if err != nil {
		return err
	}
	reworkID, err := e.labels.GetLabelID(ctx, e.user.ID, models.LabelKeyRework)
	if err != nil {
		return err
	}
	needsResponseID, err := e.labels.GetLabelID(ctx, e.user.ID, models.LabelKeyNeedsResponse)
	if err != nil {
		return err
	}

	if doneID != "" && containsLabel(change.LabelIDs, doneID) {
		e.enqueueOnce(ctx, seen, models.JobTypeCleanup, threadID, models.CleanupPayload{
			ThreadID:  threadID,
			Action:    models.CleanupActionDone,
			MessageID: change.Message.ID,
		})
	}

	if reworkID != "" && containsLabel(change.LabelIDs, reworkID) {
		e.enqueueOnce(ctx, seen, models.JobTypeRework, threadID, models.ReworkPayload{
			MessageID: change.Message.ID,
			ThreadID:  threadID,
		})
	}

	if needsResponseID != "" && containsLabel(change.LabelIDs, needsResponseID) {
		e.enqueueOnce(ctx, seen, models.JobTypeManualDraft, threadID, models.DraftPayload{
			MessageID: change.Message.ID,
			ThreadID:  threadID,
		})
	}

	return nil
}

// enqueueOnce enqueues unless this pass already produced a job of the
// same type for the same thread. Enqueue failures are logged, not
// raised: one bad insert must not abort the pass.
func (e *Engine) enqueueOnce(ctx context.Context, seen map[dedupKey]struct{}, jobType models.JobType, threadID string, payload interface{}) {
	key := dedupKey{jobType: jobType, threadID: threadID}
	if _, ok := seen[key]; ok {
		return
	}
	seen[key] = struct{}{}

	if _, err := e.jobs.Enqueue(ctx, e.user.ID, jobType, payload); err != nil {
		log.Printf("Failed to enqueue %s job for thread %s: %v", jobType, threadID, err)
	}
}

// fullSync rescans recent inbox messages directly, one classify job
// per distinct thread, then writes the provider's current cursor as
// the new watermark so the next pass can run incrementally.
func (e *Engine) fullSync(ctx context.Context) error {
	log.Printf("Starting full sync for user %s", e.user.ID)

	query, err := e.buildFullSyncQuery(ctx)
	if err != nil {
		return err
	}

	refs, err := e.provider.ListMessages(ctx, query, e.opts.FullSyncMaxMessages)
	if err != nil {
		return fmt.Errorf("failed to list recent messages: %w", err)
	}

	seenThreads := make(map[string]struct{})
	enqueued := 0
	for _, ref := range refs {
		if ref.ThreadID == "" {
			continue
		}
		if _, ok := seenThreads[ref.ThreadID]; ok {
			continue
		}
		seenThreads[ref.ThreadID] = struct{}{}

		active, err := e.jobs.HasActiveJobForThread(ctx, e.user.ID,
			[]models.JobType{models.JobTypeClassify, models.JobTypeAgentProcess}, ref.ThreadID)
		if err != nil {
			return err
		}
		if active {
			continue
		}

		if _, err := e.jobs.Enqueue(ctx, e.user.ID, models.JobTypeClassify, models.ClassifyPayload{
			MessageID: ref.ID,
			ThreadID:  ref.ThreadID,
		}); err != nil {
			log.Printf("Failed to enqueue classify job for thread %s: %v", ref.ThreadID, err)
			continue
		}
		enqueued++
	}

	cursor, err := e.provider.CurrentHistoryID(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch current cursor: %w", err)
	}

	if _, err := e.states.AdvanceWatermark(ctx, e.user.ID, cursor); err != nil {
		return err
	}

	log.Printf("Full sync completed for user %s: %d classify jobs, history id %s", e.user.ID, enqueued, cursor)
	return nil
}

// buildFullSyncQuery bounds the rescan to a recent window and excludes
// trash, spam, and anything already carrying a control label.
func (e *Engine) buildFullSyncQuery(ctx context.Context) (string, error) {
	parts := []string{
		"in:inbox",
		fmt.Sprintf("newer_than:%dd", e.opts.FullSyncDays),
		"-in:trash",
		"-in:spam",
	}

	labels, err := e.labels.ListByUser(ctx, e.user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to list control labels: %w", err)
	}
	for _, l := range labels {
		if l.ProviderLabelID != "" {
			parts = append(parts, "-label:"+l.ProviderLabelID)
		}
	}

	return strings.Join(parts, " "), nil
}

func containsLabel(labels []string, id string) bool {
	for _, l := range labels {
		if l == id {
			return true
		}
	}
	return false
}
