package recordings_test

import (
	"testing"

	"meetiq/internal/recordings"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to recordings.Status
		want     bool
	}{
		{recordings.StatusPending, recordings.StatusUploading, true},
		{recordings.StatusPending, recordings.StatusProcessing, false},
		{recordings.StatusPending, recordings.StatusCompleted, false},
		{recordings.StatusUploading, recordings.StatusProcessing, true},
		{recordings.StatusUploading, recordings.StatusCompleted, true},
		{recordings.StatusUploading, recordings.StatusFailed, true},
		{recordings.StatusProcessing, recordings.StatusCompleted, true},
		{recordings.StatusProcessing, recordings.StatusFailed, true},
		{recordings.StatusProcessing, recordings.StatusUploading, false},
		{recordings.StatusFailed, recordings.StatusUploading, true},
		{recordings.StatusFailed, recordings.StatusCompleted, false},
		{recordings.StatusCompleted, recordings.StatusUploading, false},
		{recordings.StatusCompleted, recordings.StatusCompleted, true},
	}
	for _, tc := range cases {
		if got := recordings.CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := recordings.ParseStatus("  Processing "); !ok || status != recordings.StatusProcessing {
		t.Fatalf("ParseStatus normalization failed: %v %v", status, ok)
	}
	if _, ok := recordings.ParseStatus("archived"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
	if _, ok := recordings.ParseStatus(""); ok {
		t.Fatal("expected empty status to be rejected")
	}
}

func TestResumable(t *testing.T) {
	rec := &recordings.Recording{Status: recordings.StatusProcessing, JobID: "job-1"}
	if !rec.Resumable() {
		t.Fatal("processing with job id should be resumable")
	}
	rec.JobID = ""
	if rec.Resumable() {
		t.Fatal("processing without job id should not be resumable")
	}
	rec = &recordings.Recording{Status: recordings.StatusFailed, JobID: "job-1"}
	if rec.Resumable() {
		t.Fatal("failed recordings resume by re-uploading, not polling")
	}
}
