package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"meetiq/internal/blob"
	"meetiq/internal/config"
	"meetiq/internal/logging"
	"meetiq/internal/recordings"
)

// Watcher tails a capture directory during a live recording session and
// imports each chunk file once its writer has gone quiet. Recorder apps write
// chunks incrementally, so a file is only imported after no write events have
// arrived for the configured settle delay and its size has stopped moving.
type Watcher struct {
	cfg    *config.Config
	store  *recordings.Store
	blobs  blob.Backend
	logger *slog.Logger
}

// NewWatcher constructs a capture watcher. A nil logger disables logging.
func NewWatcher(cfg *config.Config, store *recordings.Store, blobs blob.Backend, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		cfg:    cfg,
		store:  store,
		blobs:  blobs,
		logger: logging.NewComponentLogger(logger, "capture"),
	}
}

// Run watches dir until ctx is cancelled, importing eligible chunk files in
// arrival order. Returns the number of chunks imported. Files present before
// the watch starts are imported first, in chunk order.
func (w *Watcher) Run(ctx context.Context, recordingID, dir string) (int, error) {
	rec, err := w.store.GetByID(ctx, recordingID)
	if err != nil {
		return 0, fmt.Errorf("load recording: %w", err)
	}
	if rec == nil {
		return 0, fmt.Errorf("recording %s not found", recordingID)
	}
	if rec.Status != recordings.StatusPending {
		return 0, fmt.Errorf("recording %s is %s; chunks can only be captured while pending", recordingID, rec.Status)
	}

	// Watch before the initial scan so files that land mid-scan are caught
	// either by the scan or by an event; the seen set deduplicates overlap.
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return 0, fmt.Errorf("create fs watcher: %w", err)
	}
	defer notifier.Close()
	if err := notifier.Add(dir); err != nil {
		return 0, fmt.Errorf("watch %s: %w", dir, err)
	}

	imported, err := ImportDirectory(ctx, w.store, w.blobs, recordingID, dir, w.cfg.Capture.Extensions)
	if err != nil {
		return imported, err
	}
	seen := make(map[string]struct{})
	chunks, err := w.store.ListChunks(ctx, recordingID)
	if err != nil {
		return imported, fmt.Errorf("list chunks: %w", err)
	}
	for _, chunk := range chunks {
		seen[filepath.Base(chunk.BlobRef)] = struct{}{}
	}

	settle := time.Duration(w.cfg.Capture.SettleMillis) * time.Millisecond
	if settle <= 0 {
		settle = 250 * time.Millisecond
	}

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	settled := make(chan string, 16)
	defer func() {
		mu.Lock()
		for _, timer := range timers {
			timer.Stop()
		}
		mu.Unlock()
	}()

	// Each write event resets the file's settle timer; the file is only
	// queued for import once the timer fires with no further writes.
	schedule := func(filePath string) {
		mu.Lock()
		defer mu.Unlock()
		if timer, ok := timers[filePath]; ok {
			timer.Reset(settle)
			return
		}
		timers[filePath] = time.AfterFunc(settle, func() {
			select {
			case settled <- filePath:
			case <-ctx.Done():
			}
		})
	}

	w.logger.Info("watching capture directory",
		logging.String(logging.FieldRecordingID, recordingID),
		logging.String("dir", dir),
	)

	for {
		select {
		case <-ctx.Done():
			return imported, nil

		case event, ok := <-notifier.Events:
			if !ok {
				return imported, nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(event.Name)
			if !eligibleFile(name, w.cfg.Capture.Extensions) {
				continue
			}
			if _, done := seen[name]; done {
				continue
			}
			schedule(event.Name)

		case err, ok := <-notifier.Errors:
			if !ok {
				return imported, nil
			}
			w.logger.Warn("fs watcher error", logging.Error(err))

		case filePath := <-settled:
			mu.Lock()
			delete(timers, filePath)
			mu.Unlock()

			name := filepath.Base(filePath)
			if _, done := seen[name]; done {
				continue
			}
			if !sizeStable(filePath, settle/4) {
				schedule(filePath)
				continue
			}
			if err := importFile(ctx, w.store, w.blobs, rec, filePath); err != nil {
				w.logger.Error("chunk import failed",
					logging.String(logging.FieldRecordingID, recordingID),
					logging.String("file", name),
					logging.Error(err),
				)
				continue
			}
			seen[name] = struct{}{}
			imported++
			w.logger.Info("chunk captured",
				logging.String(logging.FieldRecordingID, recordingID),
				logging.String("file", name),
				logging.Int(logging.FieldChunkIndex, imported-1),
			)
		}
	}
}

// sizeStable reports whether the file's size stays constant across a short
// pause, guarding against recorders that flush in bursts longer than the
// settle delay.
func sizeStable(filePath string, pause time.Duration) bool {
	before, err := os.Stat(filePath)
	if err != nil {
		return false
	}
	if pause > 0 {
		time.Sleep(pause)
	}
	after, err := os.Stat(filePath)
	if err != nil {
		return false
	}
	return before.Size() == after.Size()
}
