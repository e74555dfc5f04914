package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/inboxagent/sync-worker/internal/config"
	"github.com/inboxagent/sync-worker/internal/gmail"
	"github.com/inboxagent/sync-worker/internal/llm"
	"github.com/inboxagent/sync-worker/internal/models"
	"github.com/inboxagent/sync-worker/internal/repository"
	"github.com/inboxagent/sync-worker/internal/syncer"
	"github.com/inboxagent/sync-worker/internal/worker"
)

// Handlers owns the collaborator clients the job handlers need and
// exposes one handler per job type. The worker pool reaches them
// through the dispatcher registry.
type Handlers struct {
	cfg    *config.Config
	jobs   *repository.JobRepository
	users  *repository.UserRepository
	states *repository.SyncStateRepository
	labels *repository.UserLabelRepository
	oauth  *gmail.Client
	llm    *llm.Client
	router syncer.Router
}

func New(
	cfg *config.Config,
	jobs *repository.JobRepository,
	users *repository.UserRepository,
	states *repository.SyncStateRepository,
	labels *repository.UserLabelRepository,
	oauth *gmail.Client,
	llmClient *llm.Client,
	router syncer.Router,
) *Handlers {
	return &Handlers{
		cfg:    cfg,
		jobs:   jobs,
		users:  users,
		states: states,
		labels: labels,
		oauth:  oauth,
		llm:    llmClient,
		router: router,
	}
}

// Register binds every handler to its job type.
func (h *Handlers) Register(d *worker.Dispatcher) {
	d.Register(models.JobTypeSync, worker.HandlerFunc(h.HandleSync))
	d.Register(models.JobTypeClassify, worker.HandlerFunc(h.HandleClassify))
	d.Register(models.JobTypeDraft, worker.HandlerFunc(h.HandleDraft))
	d.Register(models.JobTypeCleanup, worker.HandlerFunc(h.HandleCleanup))
	d.Register(models.JobTypeRework, worker.HandlerFunc(h.HandleRework))
	d.Register(models.JobTypeManualDraft, worker.HandlerFunc(h.HandleManualDraft))
	d.Register(models.JobTypeAgentProcess, worker.HandlerFunc(h.HandleAgentProcess))
}

// mailClientFor builds a Gmail client bound to the user, refreshing
// the access token if needed.
func (h *Handlers) mailClientFor(ctx context.Context, user *models.User) (*gmail.UserClient, error) {
	token, err := h.oauth.EnsureAccessToken(ctx, user, h.users)
	if err != nil {
		return nil, err
	}
	return gmail.NewUserClient(ctx, token)
}

// engineOptions translates config knobs into reconciliation policy.
func (h *Handlers) engineOptions() syncer.Options {
	return syncer.Options{
		HistoryPageSize:     int64(h.cfg.HistoryPageSize),
		FullSyncDays:        h.cfg.FullSyncDays,
		FullSyncMaxMessages: int64(h.cfg.FullSyncMaxMessages),
		StaleWatermark:      time.Duration(h.cfg.StaleWatermarkDays) * 24 * time.Hour,
	}
}

// userLabelIDs resolves the mapped provider ids for the given control
// label keys, skipping unmapped keys.
func (h *Handlers) userLabelIDs(ctx context.Context, userID string, keys ...string) ([]string, error) {
	var ids []string
	for _, key := range keys {
		id, err := h.labels.GetLabelID(ctx, userID, key)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve label %s: %w", key, err)
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
