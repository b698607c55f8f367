package transport

import (
	"strings"

	"meetiq/internal/recordings"
)

// ChunkUploadResponse is the backend's acknowledgment of a single chunk POST.
type ChunkUploadResponse struct {
	ClientID  string `json:"client_id"`
	MeetingID string `json:"meeting_id"`
	ChunkID   int    `json:"chunk_id"`
	Status    string `json:"status"`
	JobID     string `json:"job_id,omitempty"`
}

// AckResponse reports which chunks the server actually received so the
// client can re-send gaps.
type AckResponse struct {
	ClientID            string `json:"client_id"`
	MeetingID           string `json:"meeting_id"`
	TotalChunks         int    `json:"total_chunks"`
	ReceivedChunksCount int    `json:"received_chunks_count"`
	MissingChunks       []int  `json:"missing_chunks"`
	Status              string `json:"status"`
	JobID               string `json:"job_id,omitempty"`
}

// Complete reports whether the server considers the upload whole. The backend
// has emitted both spellings over time; treat them as equivalent.
func (a *AckResponse) Complete() bool {
	switch strings.ToLower(strings.TrimSpace(a.Status)) {
	case "complete", "completed":
		return true
	default:
		return false
	}
}

// JobStatus is the polled state of an asynchronous transcription/analysis job.
type JobStatus struct {
	JobID  string                     `json:"job_id"`
	Status string                     `json:"status"`
	Result *recordings.AnalysisResult `json:"result,omitempty"`
	Error  string                     `json:"error,omitempty"`
}

// Succeeded reports whether the job reached a successful terminal state.
func (j *JobStatus) Succeeded() bool {
	switch strings.ToLower(strings.TrimSpace(j.Status)) {
	case "complete", "completed":
		return true
	default:
		return false
	}
}

// Failed reports whether the job terminally failed. An explicit error field
// is treated as failure regardless of the status string.
func (j *JobStatus) Failed() bool {
	if strings.TrimSpace(j.Error) != "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(j.Status), "failed")
}
