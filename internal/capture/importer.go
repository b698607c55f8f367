package capture

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"meetiq/internal/blob"
	"meetiq/internal/recordings"
)

// ImportDirectory performs a one-shot import of every eligible chunk file in
// dir, in chunk order, appending each to the recording. Files are ordered by
// the first integer in their name (chunk_2 before chunk_10); names without a
// number sort lexicographically after numbered ones. Returns the number of
// chunks imported.
func ImportDirectory(ctx context.Context, store *recordings.Store, blobs blob.Backend, recordingID, dir string, extensions []string) (int, error) {
	rec, err := store.GetByID(ctx, recordingID)
	if err != nil {
		return 0, fmt.Errorf("load recording: %w", err)
	}
	if rec == nil {
		return 0, fmt.Errorf("recording %s not found", recordingID)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read capture dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if eligibleFile(entry.Name(), extensions) {
			names = append(names, entry.Name())
		}
	}
	sortChunkFiles(names)

	imported := 0
	for _, name := range names {
		if err := importFile(ctx, store, blobs, rec, filepath.Join(dir, name)); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}

// importFile copies one chunk file into blob storage and registers it with
// the recording.
func importFile(ctx context.Context, store *recordings.Store, blobs blob.Backend, rec *recordings.Recording, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open chunk file: %w", err)
	}
	defer file.Close()

	ref := path.Join(rec.OwnerID, rec.ID, filepath.Base(filePath))
	size, err := blobs.Store(ref, file)
	if err != nil {
		return fmt.Errorf("store chunk blob: %w", err)
	}
	if _, err := store.AppendChunk(ctx, rec.ID, ref, size); err != nil {
		return fmt.Errorf("append chunk: %w", err)
	}
	return nil
}

func eligibleFile(name string, extensions []string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, allowed := range extensions {
		if strings.EqualFold(strings.TrimSpace(allowed), ext) {
			return true
		}
	}
	return false
}

// sortChunkFiles orders capture files by the first integer embedded in the
// base name, so chunk_2.aac precedes chunk_10.aac. Ties and unnumbered names
// fall back to lexicographic order.
func sortChunkFiles(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ni, oki := firstNumber(names[i])
		nj, okj := firstNumber(names[j])
		switch {
		case oki && okj && ni != nj:
			return ni < nj
		case oki != okj:
			return oki
		default:
			return names[i] < names[j]
		}
	})
}

func firstNumber(name string) (int, bool) {
	start := -1
	for i, r := range name {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return parseDigits(name[start:i])
		}
	}
	if start >= 0 {
		return parseDigits(name[start:])
	}
	return 0, false
}

func parseDigits(digits string) (int, bool) {
	value := 0
	for _, r := range digits {
		value = value*10 + int(r-'0')
		if value < 0 {
			return 0, false
		}
	}
	return value, true
}
