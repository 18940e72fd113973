package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus tracks a job through its lifecycle
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// EmbeddingJob asks the worker to embed one stored ticket and upsert it
// into the vector index
type EmbeddingJob struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	ObjectKey string    `json:"object_key"`
	Status    JobStatus `json:"status"`
	Attempts  int       `json:"attempts"`
	MaxRetry  int       `json:"max_retry"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEmbeddingJob creates a queued job for a stored ticket
func NewEmbeddingJob(ticketID, objectKey string) *EmbeddingJob {
	now := time.Now()
	return &EmbeddingJob{
		ID:        uuid.New().String(),
		TicketID:  ticketID,
		ObjectKey: objectKey,
		Status:    JobStatusQueued,
		MaxRetry:  3,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanRetry reports whether the job has retry budget left
func (j *EmbeddingJob) CanRetry() bool {
	return j.Attempts < j.MaxRetry
}

// MarkFailed records a failed attempt
func (j *EmbeddingJob) MarkFailed(err error) {
	j.Attempts++
	j.LastError = err.Error()
	j.UpdatedAt = time.Now()
	if j.CanRetry() {
		j.Status = JobStatusRetrying
	} else {
		j.Status = JobStatusFailed
	}
}

// ToJSON serializes the job
func (j *EmbeddingJob) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

// JobFromJSON deserializes a job
func JobFromJSON(data []byte) (*EmbeddingJob, error) {
	var job EmbeddingJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
