package models

import (
	"time"

	"github.com/google/uuid"
)

// JobKind discriminates what a dispatch worker does with a DeliveryJob.
type JobKind string

const (
	JobOTPSend     JobKind = "otp_send"
	JobNotifyUser  JobKind = "notify_user"
	JobNotifyGroup JobKind = "notify_group"
	JobBroadcast   JobKind = "broadcast"
)

// Terminal job statuses. A job is owned by the dispatch queue until it
// reaches one of these, after which only the DeliveryRecord matters.
const (
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobAbandoned = "abandoned"
)

// DeliveryJob is one deliverable message travelling through the dispatch queue.
type DeliveryJob struct {
	ID            uuid.UUID `json:"id"`
	Kind          JobKind   `json:"kind"`
	Target        string    `json:"target"`
	Message       string    `json:"message"`
	Channel       string    `json:"channel"`
	Attempt       int       `json:"attempt"`
	MaxAttempts   int       `json:"max_attempts"`
	StallCount    int       `json:"stall_count"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// DeliveryRecord is the append-only audit trail row for a job's final outcome.
type DeliveryRecord struct {
	JobID       uuid.UUID  `json:"job_id"`
	Channel     string     `json:"channel"`
	Status      string     `json:"status"`
	Provider    string     `json:"provider,omitempty"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
