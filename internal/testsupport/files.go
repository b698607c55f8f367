package testsupport

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"meetiq/internal/blob"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := bytes.Repeat([]byte{0xA5}, int(size))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// SeedBlobs stores one synthetic payload per ref in the backend so uploads
// have bytes to stream.
func SeedBlobs(t testing.TB, blobs blob.Backend, refs []string) {
	t.Helper()

	for i, ref := range refs {
		payload := bytes.NewReader([]byte(fmt.Sprintf("chunk-%d-payload", i)))
		if _, err := blobs.Store(ref, payload); err != nil {
			t.Fatalf("blobs.Store(%s): %v", ref, err)
		}
	}
}

func chunkRef(recordingID string, index int) string {
	return fmt.Sprintf("test-owner/%s/chunk_%d.aac", recordingID, index)
}
