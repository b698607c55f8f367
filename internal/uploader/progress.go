package uploader

import "sync"

// Phase names one position in the upload state machine. Phases are part of
// the observable contract: the CLI, tests, and log consumers all key off them.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseConnectivity   Phase = "checking_connectivity"
	PhaseUploading      Phase = "uploading"
	PhaseAcknowledging  Phase = "acknowledging"
	PhaseReconciling    Phase = "reconciling_missing"
	PhasePolling        Phase = "polling"
	PhaseCompleted      Phase = "completed"
	PhaseFailed         Phase = "failed"
	PhaseCancelled      Phase = "cancelled"
)

// Event is one observable progress transition for a recording.
type Event struct {
	RecordingID string
	Phase       Phase
	Progress    float64
	Message     string
}

// ProgressSink consumes progress events. Implementations must be fast or
// hand off to their own goroutine; publishing happens on the upload path.
type ProgressSink interface {
	Publish(Event)
}

// ProgressFunc adapts a plain function to a ProgressSink.
type ProgressFunc func(Event)

func (f ProgressFunc) Publish(event Event) { f(event) }

type sinkList struct {
	mu    sync.RWMutex
	sinks []ProgressSink
}

func (l *sinkList) add(sink ProgressSink) {
	if sink == nil {
		return
	}
	l.mu.Lock()
	l.sinks = append(l.sinks, sink)
	l.mu.Unlock()
}

func (l *sinkList) publish(event Event) {
	l.mu.RLock()
	sinks := l.sinks
	l.mu.RUnlock()
	for _, sink := range sinks {
		sink.Publish(event)
	}
}

// Phase base fractions. Uploading spans [uploadStart, uploadEnd] by chunk
// index; polling spans the configured poller bounds; completion pins 1.0.
const (
	progressConnectivity = 0.02
	progressUploadStart  = 0.05
	progressUploadEnd    = 0.60
	progressAck          = 0.65
	progressReconcile    = 0.67
)

func uploadProgress(done, total int) float64 {
	if total <= 0 {
		return progressUploadStart
	}
	span := progressUploadEnd - progressUploadStart
	return progressUploadStart + span*float64(done)/float64(total)
}
