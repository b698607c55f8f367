package testsupport

import (
	"context"
	"testing"

	"meetiq/internal/config"
	"meetiq/internal/recordings"
)

// MustOpenStore opens a recordings.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *recordings.Store {
	t.Helper()

	store, err := recordings.Open(cfg)
	if err != nil {
		t.Fatalf("recordings.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecording creates a pending recording for tests using the provided store.
func NewRecording(t testing.TB, store *recordings.Store, ownerID, subject string) *recordings.Recording {
	t.Helper()

	rec, err := store.Create(context.Background(), "", ownerID, subject)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return rec
}

// AppendChunks registers count synthetic chunks against the recording and
// returns their blob refs.
func AppendChunks(t testing.TB, store *recordings.Store, recordingID string, count int) []string {
	t.Helper()

	refs := make([]string, 0, count)
	for i := 0; i < count; i++ {
		ref := chunkRef(recordingID, i)
		if _, err := store.AppendChunk(context.Background(), recordingID, ref, 1024); err != nil {
			t.Fatalf("store.AppendChunk: %v", err)
		}
		refs = append(refs, ref)
	}
	return refs
}
