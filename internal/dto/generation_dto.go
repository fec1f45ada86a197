package dto

import (
	"time"

	"github.com/google/uuid"
)

type SubmitGenerationRequest struct {
	SongId uuid.UUID `json:"song_id" validate:"required"`
}

type SubmitGenerationResponse struct {
	JobId  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
}

// JobStatusResponse is the polling view of a job. It must carry exactly the
// state a live push would have delivered at the same instant.
type JobStatusResponse struct {
	JobId         uuid.UUID `json:"job_id"`
	Status        string    `json:"status"`
	Progress      int       `json:"progress"`
	ResultRef     string    `json:"result_ref,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type JobHistoryResponse struct {
	Jobs []JobStatusResponse `json:"jobs"`
}
