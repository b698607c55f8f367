package blob_test

import (
	"io"
	"strings"
	"testing"

	"meetiq/internal/blob"
)

func TestFilesystemRoundTrip(t *testing.T) {
	backend := blob.NewFilesystem(t.TempDir())

	size, err := backend.Store("owner/rec/chunk_0.aac", strings.NewReader("audio"))
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if size != 5 {
		t.Fatalf("size = %d, want 5", size)
	}

	if got, err := backend.Stat("owner/rec/chunk_0.aac"); err != nil || got != 5 {
		t.Fatalf("Stat = %d, %v", got, err)
	}

	reader, err := backend.Open("owner/rec/chunk_0.aac")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, err := io.ReadAll(reader)
	reader.Close()
	if err != nil || string(data) != "audio" {
		t.Fatalf("read back %q, %v", data, err)
	}

	if err := backend.Remove("owner/rec/chunk_0.aac"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := backend.Open("owner/rec/chunk_0.aac"); err == nil {
		t.Fatal("expected open after remove to fail")
	}
}

func TestFilesystemRejectsEscapingRefs(t *testing.T) {
	backend := blob.NewFilesystem(t.TempDir())

	for _, ref := range []string{"../outside", "/etc/passwd", "a/../../b", ""} {
		if _, err := backend.Store(ref, strings.NewReader("x")); err == nil {
			t.Errorf("ref %q should be rejected", ref)
		}
	}
}

func TestMemoryBackend(t *testing.T) {
	backend := blob.NewMemory()

	if _, err := backend.Store("ref-1", strings.NewReader("payload")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	reader, err := backend.Open("ref-1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, _ := io.ReadAll(reader)
	reader.Close()
	if string(data) != "payload" {
		t.Fatalf("read back %q", data)
	}

	if refs := backend.Refs(); len(refs) != 1 || refs[0] != "ref-1" {
		t.Fatalf("refs = %v", refs)
	}

	if err := backend.Remove("ref-1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := backend.Open("ref-1"); err == nil {
		t.Fatal("expected open after remove to fail")
	}
}
