package webhook

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/inboxagent/sync-worker/internal/models"
	"github.com/inboxagent/sync-worker/internal/repository"
)

// UserLookup resolves the mailbox address carried in a push
// notification to a local user.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, userID string) (*models.User, error)
	ListActiveOnboarded(ctx context.Context) ([]models.User, error)
	Deactivate(ctx context.Context, userID string) error
}

// WatchDisabler tears down the push subscription for an offboarded
// mailbox.
type WatchDisabler interface {
	Disable(ctx context.Context, user *models.User) error
}

// JobEnqueuer inserts jobs triggered by push notifications.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, userID string, jobType models.JobType, payload interface{}) (*models.Job, error)
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
	ListRecent(ctx context.Context, limit int) ([]models.Job, error)
}

// StateReader exposes reconciliation watermarks for the admin surface.
type StateReader interface {
	GetByUser(ctx context.Context, userID string) (*models.SyncState, error)
}

type Server struct {
	users   UserLookup
	jobs    JobEnqueuer
	states  StateReader
	watches WatchDisabler
	engine  *gin.Engine
}

// pubSubEnvelope is the wrapper Pub/Sub push delivery puts around the
// actual notification payload.
type pubSubEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// gmailNotification is the base64-decoded body of a Gmail watch event.
type gmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

func NewServer(users UserLookup, jobs JobEnqueuer, states StateReader, watches WatchDisabler) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		users:   users,
		jobs:    jobs,
		states:  states,
		watches: watches,
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery())

	s.engine.GET("/health", s.handleHealth)
	s.engine.POST("/webhook/gmail", s.handleGmailWebhook)
	s.engine.GET("/admin/jobs", s.handleAdminJobs)
	s.engine.GET("/admin/sync-status", s.handleAdminSyncStatus)
	s.engine.POST("/admin/users/:id/deactivate", s.handleDeactivateUser)
	return s
}

// Handler returns the underlying http.Handler for mounting on a server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleGmailWebhook accepts a Pub/Sub push notification and enqueues
// an incremental sync for the mailbox it names. Notifications for
// mailboxes we don't know are acknowledged and dropped; returning an
// error would only make Pub/Sub redeliver them forever.
func (s *Server) handleGmailWebhook(c *gin.Context) {
	var envelope pubSubEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid envelope"})
		return
	}

	raw, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message data"})
		return
	}

	var notification gmailNotification
	if err := json.Unmarshal(raw, &notification); err != nil || notification.EmailAddress == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification"})
		return
	}

	user, err := s.users.GetByEmail(c.Request.Context(), notification.EmailAddress)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		log.Printf("Webhook user lookup failed for %s: %v", notification.EmailAddress, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if !user.Active {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	payload := models.SyncPayload{HistoryID: strconv.FormatUint(notification.HistoryID, 10)}
	job, err := s.jobs.Enqueue(c.Request.Context(), user.ID, models.JobTypeSync, payload)
	if err != nil {
		log.Printf("Webhook failed to enqueue sync for user %s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
		return
	}

	log.Printf("Webhook enqueued sync job %s for user %s (history %d)", job.ID, user.ID, notification.HistoryID)
	c.JSON(http.StatusOK, gin.H{"status": "accepted", "job_id": job.ID})
}

func (s *Server) handleAdminJobs(c *gin.Context) {
	counts, err := s.jobs.CountByStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	recent, err := s.jobs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"counts": counts, "recent": recent})
}

// handleDeactivateUser takes a mailbox out of service: the user stops
// getting scheduled work and the provider-side push subscription is
// torn down.
func (s *Server) handleDeactivateUser(c *gin.Context) {
	userID := c.Param("id")

	user, err := s.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := s.users.Deactivate(c.Request.Context(), user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := s.watches.Disable(c.Request.Context(), user); err != nil {
		// The user is already out of rotation; the lease teardown can
		// be retried by calling the endpoint again.
		log.Printf("Deactivation of user %s: watch teardown failed: %v", user.ID, err)
		c.JSON(http.StatusOK, gin.H{"status": "deactivated", "watch": "teardown failed"})
		return
	}

	log.Printf("Deactivated user %s", user.ID)
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

func (s *Server) handleAdminSyncStatus(c *gin.Context) {
	users, err := s.users.ListActiveOnboarded(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type userStatus struct {
		UserID        string  `json:"user_id"`
		Email         string  `json:"email"`
		LastHistoryID string  `json:"last_history_id"`
		LastSyncAt    *string `json:"last_sync_at"`
	}

	statuses := make([]userStatus, 0, len(users))
	for i := range users {
		user := &users[i]
		status := userStatus{UserID: user.ID, Email: user.Email, LastHistoryID: models.NeverSyncedHistoryID}
		state, err := s.states.GetByUser(c.Request.Context(), user.ID)
		if err != nil && !errors.Is(err, repository.ErrSyncStateNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if state != nil {
			status.LastHistoryID = state.LastHistoryID
			if state.LastSyncAt != nil {
				formatted := state.LastSyncAt.UTC().Format("2006-01-02T15:04:05Z")
				status.LastSyncAt = &formatted
			}
		}
		statuses = append(statuses, status)
	}

	c.JSON(http.StatusOK, gin.H{"users": statuses})
}
