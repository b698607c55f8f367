package capture_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"meetiq/internal/blob"
	"meetiq/internal/capture"
	"meetiq/internal/testsupport"
)

func writeChunks(t *testing.T, dir string, names []string) {
	t.Helper()
	for _, name := range names {
		testsupport.WriteFile(t, filepath.Join(dir, name), 64)
	}
}

func TestImportDirectoryOrdersNumerically(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.NewRecording(t, store, cfg.Client.OwnerID, "Ordered Import")
	blobs := blob.NewMemory()

	dir := t.TempDir()
	// Deliberately unsorted on disk; lexicographic order would put 10 before 2.
	writeChunks(t, dir, []string{"chunk_10.aac", "chunk_2.aac", "chunk_0.aac", "chunk_1.aac"})

	imported, err := capture.ImportDirectory(context.Background(), store, blobs, rec.ID, dir, cfg.Capture.Extensions)
	if err != nil {
		t.Fatalf("ImportDirectory failed: %v", err)
	}
	if imported != 4 {
		t.Fatalf("imported = %d, want 4", imported)
	}

	chunks, err := store.ListChunks(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("ListChunks failed: %v", err)
	}
	wantOrder := []string{"chunk_0.aac", "chunk_1.aac", "chunk_2.aac", "chunk_10.aac"}
	for i, chunk := range chunks {
		if filepath.Base(chunk.BlobRef) != wantOrder[i] {
			t.Fatalf("chunk %d = %s, want %s", i, filepath.Base(chunk.BlobRef), wantOrder[i])
		}
		if chunk.Index != i {
			t.Fatalf("chunk index = %d, want %d", chunk.Index, i)
		}
	}
}

func TestImportDirectorySkipsIneligibleFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.NewRecording(t, store, cfg.Client.OwnerID, "Filtered Import")
	blobs := blob.NewMemory()

	dir := t.TempDir()
	writeChunks(t, dir, []string{"chunk_0.aac", "notes.txt", ".hidden.aac", "chunk_1.webm"})
	if err := os.Mkdir(filepath.Join(dir, "subdir.aac"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	imported, err := capture.ImportDirectory(context.Background(), store, blobs, rec.ID, dir, cfg.Capture.Extensions)
	if err != nil {
		t.Fatalf("ImportDirectory failed: %v", err)
	}
	if imported != 2 {
		t.Fatalf("imported = %d, want only the two audio chunks", imported)
	}
	if refs := blobs.Refs(); len(refs) != 2 {
		t.Fatalf("blob refs = %v, want 2", refs)
	}
}

func TestImportDirectoryStoresBlobBytes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.NewRecording(t, store, cfg.Client.OwnerID, "Bytes Import")
	blobs := blob.NewMemory()

	dir := t.TempDir()
	payload := []byte("chunk audio payload")
	if err := os.WriteFile(filepath.Join(dir, "chunk_0.aac"), payload, 0o644); err != nil {
		t.Fatalf("write chunk: %v", err)
	}

	if _, err := capture.ImportDirectory(context.Background(), store, blobs, rec.ID, dir, cfg.Capture.Extensions); err != nil {
		t.Fatalf("ImportDirectory failed: %v", err)
	}

	chunks, err := store.ListChunks(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("ListChunks failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].SizeBytes != int64(len(payload)) {
		t.Fatalf("unexpected chunk row: %#v", chunks)
	}

	reader, err := blobs.Open(chunks[0].BlobRef)
	if err != nil {
		t.Fatalf("blob open: %v", err)
	}
	defer reader.Close()
	stored := make([]byte, len(payload))
	if _, err := reader.Read(stored); err != nil && err.Error() != "EOF" {
		t.Fatalf("blob read: %v", err)
	}
	if string(stored) != string(payload) {
		t.Fatalf("blob bytes = %q, want %q", stored, payload)
	}
}

func TestImportDirectoryUnknownRecording(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	blobs := blob.NewMemory()

	if _, err := capture.ImportDirectory(context.Background(), store, blobs, "missing", t.TempDir(), cfg.Capture.Extensions); err == nil {
		t.Fatal("expected unknown recording to be rejected")
	}
}
