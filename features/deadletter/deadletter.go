package deadletter

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("failed job not found")
	// ErrNotRetryable means the job record is no longer in the error state.
	ErrNotRetryable = errors.New("job is not in a retryable state")
)

// FailedJob is a resolve-error emission persisted for inspection and manual retry.
type FailedJob struct {
	ID        string          `json:"id"`
	JobID     string          `json:"jobId"`
	Email     string          `json:"email"`
	Error     string          `json:"error"`
	Attempt   int             `json:"attempt"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}
