package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inboxagent/sync-worker/internal/config"
	"github.com/inboxagent/sync-worker/internal/models"
)

// JobRepository is the durable job queue. Claiming goes through a
// ClaimStrategy; every other operation is a single-row, single-owner
// write.
type JobRepository struct {
	db          *sql.DB
	claim       ClaimStrategy
	maxAttempts int
}

func NewJobRepository(db *sql.DB, claimMode string, maxAttempts int) *JobRepository {
	var claim ClaimStrategy
	switch claimMode {
	case config.ClaimModeOptimistic:
		claim = &optimisticClaim{db: db}
	default:
		claim = &rowLockClaim{db: db}
	}
	if maxAttempts <= 0 {
		maxAttempts = models.DefaultMaxAttempts
	}
	return &JobRepository{db: db, claim: claim, maxAttempts: maxAttempts}
}

// Enqueue inserts a pending job with zero attempts.
func (r *JobRepository) Enqueue(ctx context.Context, userID string, jobType models.JobType, payload interface{}) (*models.Job, error) {
	if !models.ValidJobType(jobType) {
		return nil, fmt.Errorf("invalid job type %q", jobType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := models.Job{
		ID:          uuid.New().String(),
		UserID:      userID,
		JobType:     jobType,
		Status:      models.JobStatusPending,
		Payload:     raw,
		Attempts:    0,
		MaxAttempts: r.maxAttempts,
		CreatedAt:   time.Now(),
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, user_id, job_type, status, payload, attempts, max_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, job.ID, job.UserID, job.JobType, job.Status, string(job.Payload), job.Attempts, job.MaxAttempts, job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	return &job, nil
}

// ClaimNext atomically claims the oldest eligible pending job, or
// returns nil when the queue is empty.
func (r *JobRepository) ClaimNext(ctx context.Context) (*models.Job, error) {
	return r.claim.ClaimNext(ctx)
}

// Complete marks a running job as completed (terminal).
func (r *JobRepository) Complete(ctx context.Context, job *models.Job) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, completed_at = $2 WHERE id = $3
	`, models.JobStatusCompleted, now, job.ID)
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
	}
	job.Status = models.JobStatusCompleted
	job.CompletedAt = &now
	return nil
}

// Fail records a handler failure. With attempts remaining the job goes
// back to pending for reclaim; otherwise it is terminally failed.
func (r *JobRepository) Fail(ctx context.Context, job *models.Job, message string) error {
	if job.AttemptsLeft() {
		_, err := r.db.ExecContext(ctx, `
			UPDATE jobs SET status = $1, error_message = $2 WHERE id = $3
		`, models.JobStatusPending, message, job.ID)
		if err != nil {
			return fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
		}
		job.Status = models.JobStatusPending
		job.ErrorMessage = &message
		return nil
	}

	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = $1, error_message = $2, completed_at = $3 WHERE id = $4
	`, models.JobStatusFailed, message, now, job.ID)
	if err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", job.ID, err)
	}
	job.Status = models.JobStatusFailed
	job.ErrorMessage = &message
	job.CompletedAt = &now
	return nil
}

// HasActiveJobForThread reports whether a pending or running job of one
// of the given types already references the thread. Thread id is not a
// first-class queue column, so this is a payload containment check.
func (r *JobRepository) HasActiveJobForThread(ctx context.Context, userID string, jobTypes []models.JobType, threadID string) (bool, error) {
	if len(jobTypes) == 0 || threadID == "" {
		return false, nil
	}

	args := []interface{}{userID}
	placeholders := make([]string, 0, len(jobTypes))
	for _, t := range jobTypes {
		args = append(args, string(t))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	args = append(args, string(models.JobStatusPending), string(models.JobStatusRunning), "%"+threadID+"%")
	n := len(args)

	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM jobs
		WHERE user_id = $1
		  AND job_type IN (%s)
		  AND status IN ($%d, $%d)
		  AND payload LIKE $%d
	`, strings.Join(placeholders, ", "), n-2, n-1, n)

	var count int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check active jobs for thread %s: %w", threadID, err)
	}
	return count > 0, nil
}

// CountByStatus returns job counts grouped by status, for the admin
// surface.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var status models.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return counts, nil
}

// ListRecent returns the newest jobs for the admin surface.
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent jobs: %w", err)
	}
	return scanJobs(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner, job *models.Job) error {
	var payload string
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.JobType,
		&job.Status,
		&payload,
		&job.Attempts,
		&job.MaxAttempts,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return err
	}
	job.Payload = json.RawMessage(payload)
	return nil
}

func scanJobs(rows *sql.Rows) ([]models.Job, error) {
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		if err := scanJob(rows, &job); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return jobs, nil
}
