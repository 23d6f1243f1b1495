package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the lifecycle state of a job.
//
//	created → active → completed | failed
//
// Retries move a job from active back to created with a new start_after.
// Failed jobs are kept for operator inspection (quarantine), never retried
// automatically.
type State string

const (
	StateCreated   State = "created"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job is a durable unit of asynchronous work. Payloads are JSON; fields
// named by a SensitiveCarrier payload are encrypted at rest with an
// "enc:v1:" marker.
type Job struct {
	ID      string `gorm:"primaryKey;size:36" json:"id"`
	Name    string `gorm:"size:255;not null;index:idx_queue_jobs_fetch,priority:1" json:"name"`
	State   State  `gorm:"size:16;not null;index:idx_queue_jobs_fetch,priority:2" json:"state"`
	Payload string `gorm:"type:text" json:"payload"`

	// StartAfter delays visibility; fetch only claims jobs whose
	// start_after has passed.
	StartAfter time.Time `gorm:"not null;index:idx_queue_jobs_fetch,priority:3" json:"startAfter"`

	AttemptCount      int  `gorm:"not null;default:0" json:"attemptCount"`
	RetryLimit        int  `gorm:"not null;default:0" json:"retryLimit"`
	RetryDelaySeconds int  `gorm:"not null;default:0" json:"retryDelaySeconds"`
	RetryBackoff      bool `gorm:"not null;default:false" json:"retryBackoff"`

	AbortReason *string `gorm:"size:1024" json:"abortReason,omitempty"`
	LastError   *string `gorm:"size:4096" json:"lastError,omitempty"`

	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TableName returns the table name for GORM.
func (Job) TableName() string {
	return "queue_jobs"
}

// Unmarshal decodes the job payload into v. Sensitive fields have already
// been decrypted by the time a handler sees the job.
func (j *Job) Unmarshal(v any) error {
	if err := json.Unmarshal([]byte(j.Payload), v); err != nil {
		return fmt.Errorf("decode payload for job %s: %w", j.ID, err)
	}
	return nil
}
