package uploader

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// session is the ephemeral per-attempt state: progress fraction, status
// message, and the cooperative cancellation flag. One session exists per
// in-flight UploadMeeting or ResumeStatusCheck call and is destroyed when
// the call returns.
type session struct {
	recordingID string

	mu       sync.Mutex
	progress float64
	message  string

	cancelled atomic.Bool
}

func (s *session) update(progress float64, message string) {
	s.mu.Lock()
	if progress > s.progress {
		s.progress = progress
	}
	s.message = message
	s.mu.Unlock()
}

func (s *session) snapshot() (float64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress, s.message
}

func (s *session) cancel() {
	s.cancelled.Store(true)
}

func (s *session) isCancelled() bool {
	return s.cancelled.Load()
}

// sessionRegistry enforces at-most-one active orchestration per recording ID.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*session)}
}

// acquire registers a new session, rejecting when one is already in flight
// for the same recording.
func (r *sessionRegistry) acquire(recordingID string) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.sessions[recordingID]; busy {
		return nil, fmt.Errorf("upload already in progress for recording %s", recordingID)
	}
	sess := &session{recordingID: recordingID}
	r.sessions[recordingID] = sess
	return sess, nil
}

func (r *sessionRegistry) release(recordingID string) {
	r.mu.Lock()
	delete(r.sessions, recordingID)
	r.mu.Unlock()
}

func (r *sessionRegistry) get(recordingID string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[recordingID]
	return sess, ok
}
