package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/dustin/go-humanize"

	"meetiq/internal/blob"
	"meetiq/internal/config"
	"meetiq/internal/logging"
	"meetiq/internal/notifications"
	"meetiq/internal/poller"
	"meetiq/internal/recordings"
	"meetiq/internal/services"
	"meetiq/internal/transport"
)

// Transport is the protocol surface the orchestrator drives. *transport.Client
// satisfies it; tests substitute fakes.
type Transport interface {
	Probe(ctx context.Context) error
	SendChunk(ctx context.Context, ownerID, recordingID string, index, totalChunks int, data io.Reader, filename string) (*transport.ChunkUploadResponse, error)
	Acknowledge(ctx context.Context, ownerID, recordingID string, totalChunks int) (*transport.AckResponse, error)
	CheckJobStatus(ctx context.Context, jobID string) (*transport.JobStatus, error)
}

// Orchestrator coordinates one recording's journey from locally captured
// chunks to an attached analysis result: connectivity probe, sequential chunk
// upload, acknowledgment and reconciliation, then the job status poll. All
// lifecycle state lives in the store; the orchestrator itself only holds
// ephemeral per-attempt sessions, so a process restart loses nothing.
type Orchestrator struct {
	cfg       *config.Config
	store     *recordings.Store
	blobs     blob.Backend
	transport Transport
	notifier  notifications.Service
	logger    *slog.Logger

	sinks    sinkList
	sessions *sessionRegistry
}

// New constructs an Orchestrator. A nil notifier degrades to no notifications;
// a nil logger disables logging.
func New(cfg *config.Config, store *recordings.Store, blobs blob.Backend, tr Transport, notifier notifications.Service, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		blobs:     blobs,
		transport: tr,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "uploader"),
		sessions:  newSessionRegistry(),
	}
}

// Subscribe registers a progress sink. Sinks registered after an upload has
// started receive only subsequent events.
func (o *Orchestrator) Subscribe(sink ProgressSink) {
	o.sinks.add(sink)
}

// Active reports whether an orchestration is currently in flight for the
// recording.
func (o *Orchestrator) Active(recordingID string) bool {
	_, ok := o.sessions.get(recordingID)
	return ok
}

// Cancel requests cooperative cancellation of an in-flight orchestration.
// Returns false when nothing is in flight. The attempt observes the flag at
// the next safe point: between chunks while uploading, at the next tick while
// polling.
func (o *Orchestrator) Cancel(recordingID string) bool {
	sess, ok := o.sessions.get(recordingID)
	if !ok {
		return false
	}
	sess.cancel()
	return true
}

// Snapshot returns the live progress of an in-flight orchestration.
func (o *Orchestrator) Snapshot(recordingID string) (float64, string, bool) {
	sess, ok := o.sessions.get(recordingID)
	if !ok {
		return 0, "", false
	}
	progress, message := sess.snapshot()
	return progress, message, true
}

// UploadMeeting runs the full pipeline for one recording and reports whether
// it reached completed. At most one orchestration per recording runs at a
// time; a second concurrent call returns false immediately. Failures are
// absorbed into the recording's persisted state rather than returned: callers
// wanting detail read the recording back.
func (o *Orchestrator) UploadMeeting(ctx context.Context, recordingID string) bool {
	sess, err := o.sessions.acquire(recordingID)
	if err != nil {
		o.logger.Warn("upload rejected", logging.String(logging.FieldRecordingID, recordingID), logging.Error(err))
		return false
	}
	defer o.sessions.release(recordingID)

	ctx = services.WithRecordingID(ctx, recordingID)
	ctx = services.WithPhase(ctx, "upload")

	ok, err := o.run(ctx, sess, recordingID)
	if err != nil {
		o.logger.Error("upload attempt ended with error",
			logging.String(logging.FieldRecordingID, recordingID),
			logging.Error(err),
			logging.Bool("resumable", services.Resumable(err)),
		)
		if o.notifier != nil && !errors.Is(err, services.ErrCancelled) {
			_ = o.notifier.NotifyError(ctx, err, "upload of recording "+recordingID)
		}
	}
	return ok
}

// ResumeStatusCheck re-enters the poll loop for a recording that already has
// a job ID, without re-uploading anything. Used after a timeout, a cancelled
// poll, or a process restart.
func (o *Orchestrator) ResumeStatusCheck(ctx context.Context, recordingID, jobID string) bool {
	sess, err := o.sessions.acquire(recordingID)
	if err != nil {
		o.logger.Warn("resume rejected", logging.String(logging.FieldRecordingID, recordingID), logging.Error(err))
		return false
	}
	defer o.sessions.release(recordingID)

	ctx = services.WithRecordingID(ctx, recordingID)
	ctx = services.WithPhase(ctx, "resume")

	rec, err := o.store.GetByID(ctx, recordingID)
	if err != nil || rec == nil {
		o.logger.Error("resume failed to load recording", logging.String(logging.FieldRecordingID, recordingID), logging.Error(err))
		return false
	}
	if jobID == "" {
		jobID = rec.JobID
	}
	if jobID == "" {
		o.logger.Warn("resume requested without a job id", logging.String(logging.FieldRecordingID, recordingID))
		return false
	}
	if rec.Status == recordings.StatusCompleted {
		return true
	}
	if rec.Status != recordings.StatusProcessing {
		o.logger.Warn("resume requested for recording not in processing",
			logging.String(logging.FieldRecordingID, recordingID),
			logging.String("status", string(rec.Status)),
		)
		return false
	}

	ok, err := o.poll(ctx, sess, rec, jobID)
	if err != nil {
		o.logger.Error("resume poll ended with error",
			logging.String(logging.FieldRecordingID, recordingID),
			logging.Error(err),
		)
		if o.notifier != nil && !errors.Is(err, services.ErrCancelled) {
			_ = o.notifier.NotifyError(ctx, err, "status check for recording "+recordingID)
		}
	}
	return ok
}

func (o *Orchestrator) run(ctx context.Context, sess *session, recordingID string) (bool, error) {
	logger := o.logger.With(logging.String(logging.FieldRecordingID, recordingID))

	rec, err := o.store.GetByID(ctx, recordingID)
	if err != nil {
		return false, services.Wrap(services.ErrTransport, "upload", "load", "read recording", err)
	}
	if rec == nil {
		return false, services.Wrap(services.ErrNotFound, "upload", "load", "recording "+recordingID, nil)
	}
	if rec.Status == recordings.StatusCompleted {
		logger.Info("recording already completed; nothing to upload")
		return true, nil
	}
	// A recording stuck in processing with a saved job ID skips the upload
	// entirely and re-enters polling.
	if rec.Resumable() {
		logger.Info("recording has a pending job; resuming status poll",
			logging.String(logging.FieldJobID, rec.JobID))
		return o.poll(ctx, sess, rec, rec.JobID)
	}

	o.publish(ctx, sess, recordingID, PhaseConnectivity, progressConnectivity, "Checking backend connectivity")
	if err := o.transport.Probe(ctx); err != nil {
		// No lifecycle mutation: a recording that never started uploading
		// stays exactly where it was so the user can retry once online.
		o.publishNoPersist(sess, recordingID, PhaseFailed, "Backend unreachable; recording kept for retry")
		return false, services.Wrap(services.ErrConnectivity, "upload", "probe", o.cfg.API.BaseURL, err)
	}

	if err := o.store.SetStatus(ctx, recordingID, recordings.StatusUploading); err != nil {
		return false, services.Wrap(services.ErrTransport, "upload", "set_status", "enter uploading", err)
	}
	_ = o.store.SetError(ctx, recordingID, "")

	chunks, err := o.store.ListChunks(ctx, recordingID)
	if err != nil {
		return o.fail(ctx, sess, recordingID, services.Wrap(services.ErrTransport, "upload", "list_chunks", "", err))
	}
	if len(chunks) == 0 {
		return o.fail(ctx, sess, recordingID, services.Wrap(services.ErrConfiguration, "upload", "list_chunks", "no chunks captured", nil))
	}
	total := len(chunks)

	if o.notifier != nil {
		_ = o.notifier.NotifyUploadStarted(ctx, rec.Subject, total)
	}

	jobID := rec.JobID
	for i, chunk := range chunks {
		if sess.isCancelled() {
			return o.cancelDuringUpload(ctx, sess, recordingID)
		}
		select {
		case <-ctx.Done():
			return o.cancelDuringUpload(ctx, sess, recordingID)
		default:
		}

		// Chunks already delivered by a previous attempt are skipped; the
		// acknowledgment step catches any the server disagrees about.
		if chunk.State != recordings.ChunkNotSent {
			continue
		}

		o.publish(ctx, sess, recordingID, PhaseUploading, uploadProgress(i, total),
			fmt.Sprintf("Uploading chunk %d/%d (%s)", i+1, total, humanize.Bytes(uint64(chunk.SizeBytes))))

		resp, err := o.sendChunk(ctx, rec, chunk, total)
		if err != nil {
			return o.fail(ctx, sess, recordingID,
				services.Wrap(services.ErrTransport, "upload", "send_chunk", fmt.Sprintf("chunk %d/%d", i+1, total), err))
		}
		if err := o.store.MarkChunkState(ctx, recordingID, chunk.Index, recordings.ChunkSent); err != nil {
			return o.fail(ctx, sess, recordingID, services.Wrap(services.ErrTransport, "upload", "mark_chunk", "", err))
		}
		if err := o.store.IncrementUploaded(ctx, recordingID); err != nil {
			return o.fail(ctx, sess, recordingID, services.Wrap(services.ErrTransport, "upload", "count_chunk", "", err))
		}
		if jobID == "" && resp.JobID != "" {
			jobID = resp.JobID
			// Persist immediately: if the process dies before the ack round,
			// the next attempt can still find the job.
			_ = o.store.SaveJobID(ctx, recordingID, jobID)
		}
	}

	ack, err := o.reconcile(ctx, sess, rec, chunks, total)
	if err != nil {
		return o.fail(ctx, sess, recordingID, err)
	}
	if ack.JobID != "" {
		jobID = ack.JobID
	}

	if err := o.store.SetUploadedCount(ctx, recordingID, ack.ReceivedChunksCount); err != nil {
		return o.fail(ctx, sess, recordingID, services.Wrap(services.ErrTransport, "upload", "set_uploaded", "", err))
	}
	for _, chunk := range chunks {
		_ = o.store.MarkChunkState(ctx, recordingID, chunk.Index, recordings.ChunkAcked)
	}

	if err := o.store.SetStatus(ctx, recordingID, recordings.StatusProcessing); err != nil {
		return o.fail(ctx, sess, recordingID, services.Wrap(services.ErrTransport, "upload", "set_status", "enter processing", err))
	}
	if o.notifier != nil {
		_ = o.notifier.NotifyUploadCompleted(ctx, rec.Subject)
	}

	if jobID == "" {
		// The backend finished synchronously without spawning an analysis
		// job. Attach a minimal result so the recording still reads as done.
		return o.completeWithoutJob(ctx, sess, rec)
	}
	if err := o.store.SaveJobID(ctx, recordingID, jobID); err != nil {
		return false, services.Wrap(services.ErrTransport, "upload", "save_job", "", err)
	}
	rec.JobID = jobID

	return o.poll(ctx, sess, rec, jobID)
}

func (o *Orchestrator) sendChunk(ctx context.Context, rec *recordings.Recording, chunk *recordings.Chunk, total int) (*transport.ChunkUploadResponse, error) {
	reader, err := o.blobs.Open(chunk.BlobRef)
	if err != nil {
		return nil, fmt.Errorf("open chunk blob %s: %w", chunk.BlobRef, err)
	}
	defer reader.Close()
	return o.transport.SendChunk(ctx, rec.OwnerID, rec.ID, chunk.Index, total, reader, path.Base(chunk.BlobRef))
}

// reconcile runs the acknowledgment round and up to cfg.Upload.ReconcileRounds
// resend-then-reacknowledge passes. On persistent gaps it downgrades the
// still-missing chunks to not_sent, so the next attempt re-sends exactly the
// gaps, and returns ErrReconciliation.
func (o *Orchestrator) reconcile(ctx context.Context, sess *session, rec *recordings.Recording, chunks []*recordings.Chunk, total int) (*transport.AckResponse, error) {
	o.publish(ctx, sess, rec.ID, PhaseAcknowledging, progressAck, "Verifying upload with server")

	ack, err := o.transport.Acknowledge(ctx, rec.OwnerID, rec.ID, total)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "reconcile", "ack_upload", "", err)
	}

	byIndex := make(map[int]*recordings.Chunk, len(chunks))
	for _, chunk := range chunks {
		byIndex[chunk.Index] = chunk
	}

	rounds := o.cfg.Upload.ReconcileRounds
	if rounds <= 0 {
		rounds = 1
	}
	for round := 1; len(ack.MissingChunks) > 0 && round <= rounds; round++ {
		o.publish(ctx, sess, rec.ID, PhaseReconciling, progressReconcile,
			fmt.Sprintf("Re-sending %d missing chunks", len(ack.MissingChunks)))
		o.logger.Warn("server reported missing chunks",
			logging.String(logging.FieldRecordingID, rec.ID),
			logging.Int("missing", len(ack.MissingChunks)),
			logging.Int("round", round),
			logging.String(logging.FieldEventType, "reconcile_round"),
		)

		for _, index := range ack.MissingChunks {
			chunk, ok := byIndex[index]
			if !ok {
				return nil, services.Wrap(services.ErrReconciliation, "reconcile", "resend",
					fmt.Sprintf("server wants unknown chunk %d", index), nil)
			}
			if _, err := o.sendChunk(ctx, rec, chunk, total); err != nil {
				return nil, services.Wrap(services.ErrTransport, "reconcile", "resend",
					fmt.Sprintf("chunk %d", index), err)
			}
		}

		ack, err = o.transport.Acknowledge(ctx, rec.OwnerID, rec.ID, total)
		if err != nil {
			return nil, services.Wrap(services.ErrTransport, "reconcile", "ack_upload", "", err)
		}
	}

	if len(ack.MissingChunks) > 0 {
		for _, index := range ack.MissingChunks {
			_ = o.store.MarkChunkState(ctx, rec.ID, index, recordings.ChunkNotSent)
		}
		_ = o.store.SetUploadedCount(ctx, rec.ID, ack.ReceivedChunksCount)
		return nil, services.Wrap(services.ErrReconciliation, "reconcile", "ack_upload",
			fmt.Sprintf("server still missing %d of %d chunks", len(ack.MissingChunks), total), nil)
	}
	return ack, nil
}

func (o *Orchestrator) poll(ctx context.Context, sess *session, rec *recordings.Recording, jobID string) (bool, error) {
	floor := o.cfg.Poller.ProgressFloor
	o.publish(ctx, sess, rec.ID, PhasePolling, floor, "Processing meeting audio")

	p := poller.New(o.transport, poller.Options{
		Interval:    time.Duration(o.cfg.Poller.IntervalSeconds) * time.Second,
		MaxAttempts: o.cfg.Poller.MaxAttempts,
		Floor:       floor,
		Ceiling:     o.cfg.Poller.ProgressCeiling,
	}, o.logger, func(progress float64, message string) {
		o.publish(ctx, sess, rec.ID, PhasePolling, progress, message)
	})

	outcome := p.Run(ctx, jobID, sess.isCancelled)
	switch outcome.State {
	case poller.StateCompleted:
		if err := o.store.AttachResult(ctx, rec.ID, outcome.Result); err != nil {
			return false, services.Wrap(services.ErrTransport, "poll", "attach_result", "", err)
		}
		if err := o.store.SetStatus(ctx, rec.ID, recordings.StatusCompleted); err != nil {
			return false, services.Wrap(services.ErrTransport, "poll", "set_status", "enter completed", err)
		}
		o.publish(ctx, sess, rec.ID, PhaseCompleted, 1.0, "Meeting analysis ready")
		if o.notifier != nil {
			_ = o.notifier.NotifyProcessingCompleted(ctx, rec.Subject)
		}
		return true, nil

	case poller.StateFailed:
		return o.fail(ctx, sess, rec.ID,
			services.Wrap(services.ErrProcessing, "poll", "job_status", outcome.ErrorMsg, nil))

	case poller.StateTimedOut:
		// The recording stays in processing with its job ID: the backend may
		// yet finish, and ResumeStatusCheck picks it back up.
		_ = o.store.SetError(ctx, rec.ID, outcome.ErrorMsg)
		o.publish(ctx, sess, rec.ID, PhasePolling, o.cfg.Poller.ProgressCeiling, outcome.ErrorMsg)
		return false, services.Wrap(services.ErrTimeout, "poll", "job_status",
			fmt.Sprintf("after %d attempts", outcome.Attempts), nil)

	default: // cancelled
		o.publishNoPersist(sess, rec.ID, PhaseCancelled, "Status check cancelled; job continues server-side")
		return false, services.Wrap(services.ErrCancelled, "poll", "job_status", "", nil)
	}
}

// completeWithoutJob handles the synchronous-completion path where the ack
// round reports the upload complete but no analysis job was created.
func (o *Orchestrator) completeWithoutJob(ctx context.Context, sess *session, rec *recordings.Recording) (bool, error) {
	result := &recordings.AnalysisResult{
		FinancialProducts: []string{},
		MeetingSummary:    []string{"Meeting recorded successfully"},
		ActionItems:       []string{},
		ConfidenceLevel:   "low",
	}
	if err := o.store.AttachResult(ctx, rec.ID, result); err != nil {
		return false, services.Wrap(services.ErrTransport, "upload", "attach_result", "", err)
	}
	if err := o.store.SetStatus(ctx, rec.ID, recordings.StatusCompleted); err != nil {
		return false, services.Wrap(services.ErrTransport, "upload", "set_status", "enter completed", err)
	}
	o.publish(ctx, sess, rec.ID, PhaseCompleted, 1.0, "Meeting recorded successfully")
	if o.notifier != nil {
		_ = o.notifier.NotifyProcessingCompleted(ctx, rec.Subject)
	}
	return true, nil
}

func (o *Orchestrator) cancelDuringUpload(ctx context.Context, sess *session, recordingID string) (bool, error) {
	_ = o.store.SetError(ctx, recordingID, "Upload cancelled")
	_ = o.store.SetStatus(ctx, recordingID, recordings.StatusFailed)
	o.publishNoPersist(sess, recordingID, PhaseCancelled, "Upload cancelled")
	return false, services.Wrap(services.ErrCancelled, "upload", "send_chunk", "", nil)
}

// fail records the attempt's failure on the recording and emits a terminal
// progress event. It always returns (false, err) so callers can tail-call it.
func (o *Orchestrator) fail(ctx context.Context, sess *session, recordingID string, err error) (bool, error) {
	_ = o.store.SetError(ctx, recordingID, err.Error())
	if statusErr := o.store.SetStatus(ctx, recordingID, recordings.StatusFailed); statusErr != nil {
		o.logger.Error("failed to mark recording failed",
			logging.String(logging.FieldRecordingID, recordingID),
			logging.Error(statusErr),
		)
	}
	o.publishNoPersist(sess, recordingID, PhaseFailed, err.Error())
	return false, err
}

// publish updates the live session, fans the event out to subscribers, and
// persists the progress triple so `meetiq list` reflects in-flight attempts.
func (o *Orchestrator) publish(ctx context.Context, sess *session, recordingID string, phase Phase, progress float64, message string) {
	sess.update(progress, message)
	o.sinks.publish(Event{RecordingID: recordingID, Phase: phase, Progress: progress, Message: message})
	if err := o.store.SetProgress(ctx, recordingID, string(phase), message, progress); err != nil {
		o.logger.Debug("progress persist failed",
			logging.String(logging.FieldRecordingID, recordingID),
			logging.Error(err),
		)
	}
}

// publishNoPersist emits a terminal event without writing progress rows; the
// status and error columns already carry the outcome.
func (o *Orchestrator) publishNoPersist(sess *session, recordingID string, phase Phase, message string) {
	sess.update(sessionProgressFloor(sess), message)
	o.sinks.publish(Event{RecordingID: recordingID, Phase: phase, Progress: sessionProgressFloor(sess), Message: message})
}

func sessionProgressFloor(sess *session) float64 {
	progress, _ := sess.snapshot()
	return progress
}
