package uploader_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"meetiq/internal/blob"
	"meetiq/internal/config"
	"meetiq/internal/recordings"
	"meetiq/internal/testsupport"
	"meetiq/internal/transport"
	"meetiq/internal/uploader"
)

// fakeTransport scripts the backend's side of the upload protocol.
type fakeTransport struct {
	mu sync.Mutex

	probeErr error

	sent       []int
	sendErrs   map[int]error
	chunkJobID string

	acks     []*transport.AckResponse
	ackCalls int
	onAck    func(call int)

	statuses    []*transport.JobStatus
	statusCalls int
}

func (f *fakeTransport) Probe(ctx context.Context) error {
	return f.probeErr
}

func (f *fakeTransport) SendChunk(ctx context.Context, ownerID, recordingID string, index, totalChunks int, data io.Reader, filename string) (*transport.ChunkUploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.sendErrs[index]; ok && err != nil {
		delete(f.sendErrs, index)
		return nil, err
	}
	if _, err := io.ReadAll(data); err != nil {
		return nil, err
	}
	f.sent = append(f.sent, index)
	return &transport.ChunkUploadResponse{
		ClientID:  ownerID,
		MeetingID: recordingID,
		ChunkID:   index,
		Status:    "received",
		JobID:     f.chunkJobID,
	}, nil
}

func (f *fakeTransport) Acknowledge(ctx context.Context, ownerID, recordingID string, totalChunks int) (*transport.AckResponse, error) {
	f.mu.Lock()
	call := f.ackCalls
	f.ackCalls++
	var ack *transport.AckResponse
	if call < len(f.acks) {
		ack = f.acks[call]
	} else {
		ack = f.acks[len(f.acks)-1]
	}
	onAck := f.onAck
	f.mu.Unlock()
	if onAck != nil {
		onAck(call)
	}
	return ack, nil
}

func (f *fakeTransport) CheckJobStatus(ctx context.Context, jobID string) (*transport.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.statusCalls
	f.statusCalls++
	if call < len(f.statuses) {
		return f.statuses[call], nil
	}
	return f.statuses[len(f.statuses)-1], nil
}

func (f *fakeTransport) sentIndexes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]int, len(f.sent))
	copy(cp, f.sent)
	return cp
}

type fixture struct {
	cfg   *config.Config
	store *recordings.Store
	blobs *blob.Memory
	rec   *recordings.Recording
}

func newFixture(t *testing.T, chunkCount int, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.NewRecording(t, store, cfg.Client.OwnerID, "Client Call")
	refs := testsupport.AppendChunks(t, store, rec.ID, chunkCount)
	blobs := blob.NewMemory()
	testsupport.SeedBlobs(t, blobs, refs)
	return &fixture{cfg: cfg, store: store, blobs: blobs, rec: rec}
}

func (fx *fixture) orchestrator(tr uploader.Transport) *uploader.Orchestrator {
	return uploader.New(fx.cfg, fx.store, fx.blobs, tr, nil, nil)
}

func completeAck(total int, jobID string) *transport.AckResponse {
	return &transport.AckResponse{
		TotalChunks:         total,
		ReceivedChunksCount: total,
		MissingChunks:       []int{},
		Status:              "complete",
		JobID:               jobID,
	}
}

func completedStatus(summary string) *transport.JobStatus {
	return &transport.JobStatus{
		JobID:  "job-1",
		Status: "completed",
		Result: &recordings.AnalysisResult{MeetingSummary: []string{summary}, ConfidenceLevel: "high"},
	}
}

func mustGet(t *testing.T, store *recordings.Store, id string) *recordings.Recording {
	t.Helper()
	rec, err := store.GetByID(context.Background(), id)
	if err != nil || rec == nil {
		t.Fatalf("GetByID(%s): %v %v", id, rec, err)
	}
	return rec
}

func TestUploadMeetingHappyPath(t *testing.T) {
	fx := newFixture(t, 3)
	tr := &fakeTransport{
		acks:     []*transport.AckResponse{completeAck(3, "job-1")},
		statuses: []*transport.JobStatus{completedStatus("productive meeting")},
	}
	orch := fx.orchestrator(tr)

	if !orch.UploadMeeting(context.Background(), fx.rec.ID) {
		t.Fatal("expected upload to succeed")
	}

	sent := tr.sentIndexes()
	if len(sent) != 3 {
		t.Fatalf("sent %v, want each chunk exactly once", sent)
	}
	for i, index := range sent {
		if index != i {
			t.Fatalf("chunks sent out of order: %v", sent)
		}
	}

	rec := mustGet(t, fx.store, fx.rec.ID)
	if rec.Status != recordings.StatusCompleted {
		t.Fatalf("status = %s, want completed", rec.Status)
	}
	if rec.UploadedChunks != 3 {
		t.Fatalf("uploaded chunks = %d, want 3", rec.UploadedChunks)
	}
	if rec.JobID != "job-1" {
		t.Fatalf("job id = %q, want job-1", rec.JobID)
	}
	if rec.Result == nil || rec.Result.MeetingSummary[0] != "productive meeting" {
		t.Fatalf("unexpected result: %#v", rec.Result)
	}

	chunks, err := fx.store.ListChunks(context.Background(), fx.rec.ID)
	if err != nil {
		t.Fatalf("ListChunks: %v", err)
	}
	for _, chunk := range chunks {
		if chunk.State != recordings.ChunkAcked {
			t.Fatalf("chunk %d state = %s, want acked", chunk.Index, chunk.State)
		}
	}
}

func TestUploadMeetingConnectivityFailureLeavesStateUntouched(t *testing.T) {
	fx := newFixture(t, 2)
	tr := &fakeTransport{probeErr: errors.New("dial tcp: connection refused")}
	orch := fx.orchestrator(tr)

	if orch.UploadMeeting(context.Background(), fx.rec.ID) {
		t.Fatal("expected upload to fail without connectivity")
	}

	rec := mustGet(t, fx.store, fx.rec.ID)
	if rec.Status != recordings.StatusPending {
		t.Fatalf("status = %s, want pending untouched", rec.Status)
	}
	if len(tr.sentIndexes()) != 0 {
		t.Fatal("no chunks should be sent without connectivity")
	}
}

func TestUploadMeetingTransportFailureMarksFailedAndResumes(t *testing.T) {
	fx := newFixture(t, 3)
	tr := &fakeTransport{
		sendErrs: map[int]error{1: errors.New("broken pipe")},
		acks:     []*transport.AckResponse{completeAck(3, "job-1")},
		statuses: []*transport.JobStatus{completedStatus("recovered")},
	}
	orch := fx.orchestrator(tr)

	if orch.UploadMeeting(context.Background(), fx.rec.ID) {
		t.Fatal("expected first attempt to fail")
	}

	rec := mustGet(t, fx.store, fx.rec.ID)
	if rec.Status != recordings.StatusFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}
	if rec.ErrorMessage == "" {
		t.Fatal("expected persisted error message")
	}
	if got := tr.sentIndexes(); len(got) != 1 || got[0] != 0 {
		t.Fatalf("first attempt sent %v, want just chunk 0", got)
	}

	// Retry resends only what never made it.
	if !orch.UploadMeeting(context.Background(), fx.rec.ID) {
		t.Fatal("expected retry to succeed")
	}
	if got := tr.sentIndexes(); len(got) != 3 {
		t.Fatalf("after retry sent %v, want chunks 0,1,2 once each", got)
	}
	rec = mustGet(t, fx.store, fx.rec.ID)
	if rec.Status != recordings.StatusCompleted {
		t.Fatalf("status after retry = %s, want completed", rec.Status)
	}
	if rec.ErrorMessage != "" {
		t.Fatalf("error message should be cleared on retry, got %q", rec.ErrorMessage)
	}
}

func TestUploadMeetingReconciliationResendsMissing(t *testing.T) {
	fx := newFixture(t, 4)
	tr := &fakeTransport{
		acks: []*transport.AckResponse{
			{TotalChunks: 4, ReceivedChunksCount: 3, MissingChunks: []int{2}, Status: "incomplete"},
			completeAck(4, "job-1"),
		},
		statuses: []*transport.JobStatus{completedStatus("after reconcile")},
	}
	orch := fx.orchestrator(tr)

	if !orch.UploadMeeting(context.Background(), fx.rec.ID) {
		t.Fatal("expected upload to succeed after reconciliation")
	}

	sent := tr.sentIndexes()
	if len(sent) != 5 || sent[4] != 2 {
		t.Fatalf("sent %v, want 0,1,2,3 then re-send of 2", sent)
	}
	if tr.ackCalls != 2 {
		t.Fatalf("ack calls = %d, want 2", tr.ackCalls)
	}
	rec := mustGet(t, fx.store, fx.rec.ID)
	if rec.Status != recordings.StatusCompleted {
		t.Fatalf("status = %s, want completed", rec.Status)
	}
}

func TestUploadMeetingPersistentGapsFailAfterBoundedRounds(t *testing.T) {
	fx := newFixture(t, 3)
	tr := &fakeTransport{
		acks: []*transport.AckResponse{
			{TotalChunks: 3, ReceivedChunksCount: 2, MissingChunks: []int{1}, Status: "incomplete"},
		},
	}
	orch := fx.orchestrator(tr)

	if orch.UploadMeeting(context.Background(), fx.rec.ID) {
		t.Fatal("expected upload to fail with persistent gaps")
	}
	// Initial ack plus one reconciliation round.
	if tr.ackCalls != 2 {
		t.Fatalf("ack calls = %d, want 2", tr.ackCalls)
	}

	rec := mustGet(t, fx.store, fx.rec.ID)
	if rec.Status != recordings.StatusFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}
	if rec.UploadedChunks != 2 {
		t.Fatalf("uploaded chunks = %d, want server's count of 2", rec.UploadedChunks)
	}

	chunks, err := fx.store.ListChunks(context.Background(), fx.rec.ID)
	if err != nil {
		t.Fatalf("ListChunks: %v", err)
	}
	if chunks[1].State != recordings.ChunkNotSent {
		t.Fatalf("missing chunk state = %s, want downgraded to not_sent", chunks[1].State)
	}
}

func TestUploadMeetingCompletesWithoutJob(t *testing.T) {
	fx := newFixture(t, 2)
	tr := &fakeTransport{
		acks: []*transport.AckResponse{completeAck(2, "")},
	}
	orch := fx.orchestrator(tr)

	if !orch.UploadMeeting(context.Background(), fx.rec.ID) {
		t.Fatal("expected synchronous completion to succeed")
	}

	rec := mustGet(t, fx.store, fx.rec.ID)
	if rec.Status != recordings.StatusCompleted {
		t.Fatalf("status = %s, want completed", rec.Status)
	}
	if rec.Result == nil || len(rec.Result.MeetingSummary) != 1 {
		t.Fatalf("expected placeholder result, got %#v", rec.Result)
	}
	if tr.statusCalls != 0 {
		t.Fatalf("status calls = %d, want 0 when no job exists", tr.statusCalls)
	}
}

func TestUploadMeetingTimeoutLeavesProcessing(t *testing.T) {
	fx := newFixture(t, 1, testsupport.WithPollBudget(1))
	tr := &fakeTransport{
		acks:     []*transport.AckResponse{completeAck(1, "job-9")},
		statuses: []*transport.JobStatus{{JobID: "job-9", Status: "processing"}},
	}
	orch := fx.orchestrator(tr)

	if orch.UploadMeeting(context.Background(), fx.rec.ID) {
		t.Fatal("expected upload to report not-complete on timeout")
	}

	rec := mustGet(t, fx.store, fx.rec.ID)
	if rec.Status != recordings.StatusProcessing {
		t.Fatalf("status = %s, want processing kept for resume", rec.Status)
	}
	if rec.JobID != "job-9" {
		t.Fatalf("job id = %q, want job-9", rec.JobID)
	}
	if rec.ErrorMessage == "" {
		t.Fatal("expected timeout message to be recorded")
	}
}

func TestUploadMeetingJobFailureMarksFailed(t *testing.T) {
	fx := newFixture(t, 1)
	tr := &fakeTransport{
		acks:     []*transport.AckResponse{completeAck(1, "job-2")},
		statuses: []*transport.JobStatus{{JobID: "job-2", Status: "failed", Error: "audio unreadable"}},
	}
	orch := fx.orchestrator(tr)

	if orch.UploadMeeting(context.Background(), fx.rec.ID) {
		t.Fatal("expected upload to fail when the job fails")
	}
	rec := mustGet(t, fx.store, fx.rec.ID)
	if rec.Status != recordings.StatusFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}
}

func TestCancelDuringPollLeavesProcessing(t *testing.T) {
	fx := newFixture(t, 1)
	tr := &fakeTransport{
		statuses: []*transport.JobStatus{{JobID: "job-3", Status: "processing"}},
	}
	var orch *uploader.Orchestrator
	tr.acks = []*transport.AckResponse{completeAck(1, "job-3")}
	tr.onAck = func(call int) {
		// Cancel once the upload is verified, before polling starts.
		orch.Cancel(fx.rec.ID)
	}
	orch = fx.orchestrator(tr)

	if orch.UploadMeeting(context.Background(), fx.rec.ID) {
		t.Fatal("expected cancelled attempt to report not-complete")
	}

	rec := mustGet(t, fx.store, fx.rec.ID)
	if rec.Status != recordings.StatusProcessing {
		t.Fatalf("status = %s, want processing preserved on cancel", rec.Status)
	}
	if rec.JobID != "job-3" {
		t.Fatalf("job id = %q, want job-3 saved for resume", rec.JobID)
	}
}

func TestResumeStatusCheckFinishesProcessingRecording(t *testing.T) {
	fx := newFixture(t, 1)
	ctx := context.Background()
	if err := fx.store.SetStatus(ctx, fx.rec.ID, recordings.StatusUploading); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := fx.store.SetStatus(ctx, fx.rec.ID, recordings.StatusProcessing); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := fx.store.SaveJobID(ctx, fx.rec.ID, "job-7"); err != nil {
		t.Fatalf("SaveJobID: %v", err)
	}

	tr := &fakeTransport{statuses: []*transport.JobStatus{completedStatus("resumed fine")}}
	orch := fx.orchestrator(tr)

	if !orch.ResumeStatusCheck(ctx, fx.rec.ID, "") {
		t.Fatal("expected resume to complete the recording")
	}
	rec := mustGet(t, fx.store, fx.rec.ID)
	if rec.Status != recordings.StatusCompleted {
		t.Fatalf("status = %s, want completed", rec.Status)
	}
	if len(tr.sentIndexes()) != 0 {
		t.Fatal("resume must not re-send chunks")
	}
}

func TestUploadMeetingResumesPollForProcessingRecording(t *testing.T) {
	fx := newFixture(t, 1)
	ctx := context.Background()
	if err := fx.store.SetStatus(ctx, fx.rec.ID, recordings.StatusUploading); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := fx.store.SetStatus(ctx, fx.rec.ID, recordings.StatusProcessing); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := fx.store.SaveJobID(ctx, fx.rec.ID, "job-8"); err != nil {
		t.Fatalf("SaveJobID: %v", err)
	}

	tr := &fakeTransport{statuses: []*transport.JobStatus{completedStatus("skipped upload")}}
	orch := fx.orchestrator(tr)

	if !orch.UploadMeeting(ctx, fx.rec.ID) {
		t.Fatal("expected upload to short-circuit into polling")
	}
	if len(tr.sentIndexes()) != 0 || tr.ackCalls != 0 {
		t.Fatal("resumable recording must skip upload and ack entirely")
	}
}

func TestUploadMeetingUnknownRecording(t *testing.T) {
	fx := newFixture(t, 1)
	orch := fx.orchestrator(&fakeTransport{acks: []*transport.AckResponse{completeAck(1, "")}})

	if orch.UploadMeeting(context.Background(), "missing-id") {
		t.Fatal("expected upload of unknown recording to fail")
	}
}

func TestProgressEventsReachSubscribers(t *testing.T) {
	fx := newFixture(t, 2)
	tr := &fakeTransport{
		acks:     []*transport.AckResponse{completeAck(2, "job-1")},
		statuses: []*transport.JobStatus{completedStatus("with progress")},
	}
	orch := fx.orchestrator(tr)

	var mu sync.Mutex
	var events []uploader.Event
	orch.Subscribe(uploader.ProgressFunc(func(event uploader.Event) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	}))

	if !orch.UploadMeeting(context.Background(), fx.rec.ID) {
		t.Fatal("expected upload to succeed")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) == 0 {
		t.Fatal("expected progress events")
	}
	last := events[len(events)-1]
	if last.Phase != uploader.PhaseCompleted || last.Progress != 1.0 {
		t.Fatalf("final event = %#v, want completed at 1.0", last)
	}
	sawUploading := false
	for _, event := range events {
		if event.Phase == uploader.PhaseUploading {
			sawUploading = true
		}
		if event.RecordingID != fx.rec.ID {
			t.Fatalf("event for wrong recording: %#v", event)
		}
	}
	if !sawUploading {
		t.Fatalf("no uploading events observed: %#v", events)
	}
}
