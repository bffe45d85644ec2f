package dtos

// JobError is one failed item of a batch job run
type JobError struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// JobStatus constants
const (
	JobStatusProcessing          = "processing"
	JobStatusCompleted           = "completed"
	JobStatusCompletedWithErrors = "completed_with_errors"
	JobStatusFailed              = "failed"
)
