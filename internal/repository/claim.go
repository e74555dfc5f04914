package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/inboxagent/sync-worker/internal/models"
)

// ClaimStrategy atomically transitions the oldest eligible pending job
// to running. Exactly one concurrent caller may win a given row; every
// other caller gets a different row or nil.
type ClaimStrategy interface {
	ClaimNext(ctx context.Context) (*models.Job, error)
}

const jobColumns = `id, user_id, job_type, status, payload, attempts, max_attempts,
       error_message, created_at, started_at, completed_at`

// rowLockClaim uses Postgres row locking: the SELECT takes the row
// lock, so the follow-up UPDATE cannot race another claimer. SKIP
// LOCKED keeps concurrent claimers from queueing on the same row.
type rowLockClaim struct {
	db *sql.DB
}

func (c *rowLockClaim) ClaimNext(ctx context.Context) (*models.Job, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND attempts < max_attempts
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	var job models.Job
	err = scanJob(tx.QueryRowContext(ctx, query, models.JobStatusPending), &job)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select claimable job: %w", err)
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, attempts = attempts + 1, started_at = $2
		WHERE id = $3
	`, models.JobStatusRunning, now, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark job running: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	job.Status = models.JobStatusRunning
	job.Attempts++
	job.StartedAt = &now
	return &job, nil
}

// optimisticClaim is the fallback for backends without row locking: a
// conditional update guarded on status still being pending, verified
// through the affected-row count. A loser of the race simply moves on
// to the next candidate.
type optimisticClaim struct {
	db *sql.DB
}

const claimCandidates = 5

func (c *optimisticClaim) ClaimNext(ctx context.Context) (*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND attempts < max_attempts
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := c.db.QueryContext(ctx, query, models.JobStatusPending, claimCandidates)
	if err != nil {
		return nil, fmt.Errorf("failed to query claimable jobs: %w", err)
	}
	candidates, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		job := candidates[i]
		now := time.Now()
		res, err := c.db.ExecContext(ctx, `
			UPDATE jobs
			SET status = $1, attempts = attempts + 1, started_at = $2
			WHERE id = $3 AND status = $4
		`, models.JobStatusRunning, now, job.ID, models.JobStatusPending)
		if err != nil {
			return nil, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read claim result: %w", err)
		}
		if affected == 0 {
			// Lost the race for this row, try the next candidate
			continue
		}

		job.Status = models.JobStatusRunning
		job.Attempts++
		job.StartedAt = &now
		return &job, nil
	}

	return nil, nil
}
