package recordings

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a recording.
type Status string

const (
	StatusPending    Status = "pending"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusUploading,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// validTransitions encodes the lifecycle invariant: status only advances
// pending -> uploading -> processing -> completed, failed is reachable from
// uploading or processing, and failed recordings can re-enter uploading.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusUploading},
	StatusUploading:  {StatusProcessing, StatusCompleted, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusUploading},
	StatusCompleted:  {},
}

// CanTransition reports whether moving from one status to another is legal.
// A no-op transition to the same status is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// UploadState tracks how far an individual chunk has moved through the protocol.
type UploadState string

const (
	ChunkNotSent UploadState = "not_sent"
	ChunkSent    UploadState = "sent"
	ChunkAcked   UploadState = "acked"
)

// Chunk is one captured audio segment, addressed by recording ID and index.
// Chunks are append-only and immutable once written; the index order is
// load-bearing because the protocol re-sends by index.
type Chunk struct {
	RecordingID string
	Index       int
	BlobRef     string
	SizeBytes   int64
	State       UploadState
	CreatedAt   time.Time
}

// AnalysisResult is the backend's analysis of a completed meeting. Once
// attached to a recording it is immutable; a new upload attempt replaces it
// wholesale, never merges.
type AnalysisResult struct {
	IsFinancialMeeting bool     `json:"is_financial_meeting"`
	FinancialProducts  []string `json:"financial_products"`
	ClientIntent       string   `json:"client_intent,omitempty"`
	MeetingSummary     []string `json:"meeting_summary"`
	ActionItems        []string `json:"action_items"`
	FollowUpDate       *string  `json:"follow_up_date,omitempty"`
	ConfidenceLevel    string   `json:"confidence_level"`
}

// Recording is one user-initiated capture session persisted in SQLite.
type Recording struct {
	ID              string
	OwnerID         string
	Subject         string
	Status          Status
	TotalChunks     int
	UploadedChunks  int
	DurationSeconds float64
	JobID           string
	Result          *AnalysisResult
	ErrorMessage    string
	ProgressPhase   string
	ProgressPercent float64
	ProgressMessage string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsTerminal reports whether the recording has reached a final state for the
// current attempt. Failed recordings remain retryable.
func (r *Recording) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Resumable reports whether a later attempt can re-enter polling with the
// persisted job ID instead of re-uploading.
func (r *Recording) Resumable() bool {
	return r.Status == StatusProcessing && strings.TrimSpace(r.JobID) != ""
}

// HealthSummary describes aggregated recording counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Uploading  int
	Processing int
	Completed  int
	Failed     int
}
