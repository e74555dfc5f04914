package models

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"   // Waiting to be claimed by a worker
	JobStatusRunning   JobStatus = "running"   // Claimed, handler in flight
	JobStatusCompleted JobStatus = "completed" // Handler returned successfully (terminal)
	JobStatusFailed    JobStatus = "failed"    // Attempts exhausted (terminal)
)

type JobType string

const (
	JobTypeSync         JobType = "sync"          // Reconcile a mailbox against the provider change log
	JobTypeClassify     JobType = "classify"      // Categorize an inbound message
	JobTypeDraft        JobType = "draft"         // Generate a reply draft (pipeline-triggered)
	JobTypeCleanup      JobType = "cleanup"       // Lifecycle cleanup (done / check_sent)
	JobTypeRework       JobType = "rework"        // Regenerate an existing draft
	JobTypeManualDraft  JobType = "manual_draft"  // User asked for a draft via control label
	JobTypeAgentProcess JobType = "agent_process" // Route a message through an agent profile
)

const DefaultMaxAttempts = 3

// Job is one unit of asynchronous work. Rows are created by the sync
// engine, the scheduler, or the webhook, and only ever mutated by the
// claim protocol and by completion/failure.
type Job struct {
	ID           string          `gorm:"column:id;primaryKey"`
	UserID       string          `gorm:"column:user_id;index"`
	JobType      JobType         `gorm:"column:job_type"`
	Status       JobStatus       `gorm:"column:status;index"`
	Payload      json.RawMessage `gorm:"column:payload"`
	Attempts     int             `gorm:"column:attempts"`
	MaxAttempts  int             `gorm:"column:max_attempts"`
	ErrorMessage *string         `gorm:"column:error_message"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
	StartedAt    *time.Time      `gorm:"column:started_at"`
	CompletedAt  *time.Time      `gorm:"column:completed_at"`
}

// TableName specifies the table name for GORM
func (Job) TableName() string {
	return "jobs"
}

// Terminal reports whether the job can never run again.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// AttemptsLeft reports whether a failure should revert the job to
// pending instead of marking it terminally failed.
func (j *Job) AttemptsLeft() bool {
	return j.Attempts < j.MaxAttempts
}

// ValidJobType reports whether t is one of the known job types.
func ValidJobType(t JobType) bool {
	switch t {
	case JobTypeSync, JobTypeClassify, JobTypeDraft, JobTypeCleanup,
		JobTypeRework, JobTypeManualDraft, JobTypeAgentProcess:
		return true
	}
	return false
}
