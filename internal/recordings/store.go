package recordings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"meetiq/internal/config"
)

// Store manages recording persistence backed by SQLite. Every mutation is
// written synchronously so a crash mid-upload leaves consistent on-disk state.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the recordings database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "recordings.db")
	return OpenPath(dbPath)
}

// OpenPath opens a store at an explicit database path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create inserts a new recording in status pending with no chunks.
// An empty id generates a fresh UUID.
func (s *Store) Create(ctx context.Context, id, ownerID, subject string) (*Recording, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO recordings (id, owner_id, subject, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		ownerID,
		nullableString(strings.TrimSpace(subject)),
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert recording: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a recording by identifier. Returns nil when not found.
func (s *Store) GetByID(ctx context.Context, id string) (*Recording, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return rec, nil
}

// ListAll returns all recordings for an owner sorted by creation time descending.
func (s *Store) ListAll(ctx context.Context, ownerID string) ([]*Recording, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE owner_id = ? ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var recs []*Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// AppendChunk registers a newly captured chunk and returns its index.
// Only legal while the recording is still pending (capture active); the total
// chunk count is fixed once upload begins.
func (s *Store) AppendChunk(ctx context.Context, recordingID, blobRef string, sizeBytes int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	var total int
	row := tx.QueryRowContext(ctx, `SELECT status, total_chunks FROM recordings WHERE id = ?`, recordingID)
	if err := row.Scan(&status, &total); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("recording %s not found", recordingID)
		}
		return 0, fmt.Errorf("read recording: %w", err)
	}
	if Status(status) != StatusPending {
		return 0, fmt.Errorf("cannot append chunk to recording %s in status %s", recordingID, status)
	}

	index := total
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO recording_chunks (recording_id, chunk_index, blob_ref, size_bytes, state, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		recordingID, index, blobRef, sizeBytes, ChunkNotSent, timestamp,
	); err != nil {
		return 0, fmt.Errorf("insert chunk: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE recordings SET total_chunks = total_chunks + 1, updated_at = ? WHERE id = ?`,
		timestamp, recordingID,
	); err != nil {
		return 0, fmt.Errorf("bump total chunks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return index, nil
}

// ListChunks returns chunk references in capture order.
func (s *Store) ListChunks(ctx context.Context, recordingID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT recording_id, chunk_index, blob_ref, size_bytes, state, created_at
         FROM recording_chunks WHERE recording_id = ? ORDER BY chunk_index`,
		recordingID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var (
			chunk      Chunk
			state      string
			createdRaw string
		)
		if err := rows.Scan(&chunk.RecordingID, &chunk.Index, &chunk.BlobRef, &chunk.SizeBytes, &state, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunk.State = UploadState(state)
		if created, err := parseTimeString(createdRaw); err == nil {
			chunk.CreatedAt = created
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// SetStatus advances a recording's lifecycle status, enforcing the legal
// transition graph. Setting the current status again is a no-op.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	if _, ok := statusSet[status]; !ok {
		return fmt.Errorf("unknown status %q", status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	row := tx.QueryRowContext(ctx, `SELECT status FROM recordings WHERE id = ?`, id)
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("recording %s not found", id)
		}
		return fmt.Errorf("read status: %w", err)
	}
	if !CanTransition(Status(current), status) {
		return fmt.Errorf("illegal status transition %s -> %s for recording %s", current, status, id)
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE recordings SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC().Format(time.RFC3339Nano), id,
	); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status: %w", err)
	}
	return nil
}

// IncrementUploaded bumps the uploaded chunk counter, clamped at total_chunks
// so retried increments stay idempotent against the invariant.
func (s *Store) IncrementUploaded(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE recordings
         SET uploaded_chunks = uploaded_chunks + 1, updated_at = ?
         WHERE id = ? AND uploaded_chunks < total_chunks`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("increment uploaded: %w", err)
	}
	if _, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	return nil
}

// SetUploadedCount pins the uploaded counter to an absolute value, used when
// reconciliation learns the server's authoritative received count.
func (s *Store) SetUploadedCount(ctx context.Context, id string, count int) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE recordings
         SET uploaded_chunks = MIN(?, total_chunks), updated_at = ?
         WHERE id = ?`,
		count,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set uploaded count: %w", err)
	}
	return nil
}

// MarkChunkState records how far a chunk has moved through the upload protocol.
func (s *Store) MarkChunkState(ctx context.Context, recordingID string, index int, state UploadState) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE recording_chunks SET state = ? WHERE recording_id = ? AND chunk_index = ?`,
		state, recordingID, index,
	)
	if err != nil {
		return fmt.Errorf("mark chunk state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("chunk %d of recording %s not found", index, recordingID)
	}
	return nil
}

// SaveJobID durably persists the backend job identifier as soon as it is
// known so a cancelled or restarted attempt can resume polling.
func (s *Store) SaveJobID(ctx context.Context, id, jobID string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE recordings SET job_id = ?, updated_at = ? WHERE id = ?`,
		nullableString(strings.TrimSpace(jobID)),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("save job id: %w", err)
	}
	return nil
}

// AttachResult stores the analysis result, replacing any previous one wholesale.
func (s *Store) AttachResult(ctx context.Context, id string, result *AnalysisResult) error {
	if result == nil {
		return errors.New("result is nil")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE recordings SET result_json = ?, updated_at = ? WHERE id = ?`,
		string(payload),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("attach result: %w", err)
	}
	return nil
}

// SetProgress updates the observable progress fields in one write.
func (s *Store) SetProgress(ctx context.Context, id, phase, message string, percent float64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE recordings
         SET progress_phase = ?, progress_percent = ?, progress_message = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(phase),
		percent,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

// SetError records the failure message for the current attempt.
func (s *Store) SetError(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE recordings SET error_message = ?, updated_at = ? WHERE id = ?`,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set error: %w", err)
	}
	return nil
}

// SetDuration stores the accumulated capture duration in seconds.
func (s *Store) SetDuration(ctx context.Context, id string, seconds float64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE recordings SET duration_seconds = ?, updated_at = ? WHERE id = ?`,
		seconds,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set duration: %w", err)
	}
	return nil
}

// ResetStuckUploading fails recordings left in uploading by a crashed process
// so the user can retry them; acknowledged chunks keep their state for resume.
func (s *Store) ResetStuckUploading(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE recordings
         SET status = ?, error_message = 'Upload interrupted', progress_message = NULL, updated_at = ?
         WHERE status = ?`,
		StatusFailed,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusUploading,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck uploading: %w", err)
	}
	return res.RowsAffected()
}

// Remove deletes a recording and its chunk rows. Only used on explicit cancel.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete recording: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Stats returns a count of recordings grouped by status for one owner.
func (s *Store) Stats(ctx context.Context, ownerID string) (map[Status]int, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status, COUNT(1) FROM recordings WHERE owner_id = ? GROUP BY status`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("recording stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates recording state for diagnostic output.
func (s *Store) Health(ctx context.Context, ownerID string) (HealthSummary, error) {
	stats, err := s.Stats(ctx, ownerID)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusUploading:
			health.Uploading += count
		case StatusProcessing:
			health.Processing += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

const recordingColumns = "id, owner_id, subject, status, total_chunks, uploaded_chunks, duration_seconds, job_id, result_json, error_message, progress_phase, progress_percent, progress_message, created_at, updated_at"

func scanRecording(scanner interface{ Scan(dest ...any) error }) (*Recording, error) {
	var (
		id              string
		ownerID         string
		subject         sql.NullString
		statusStr       string
		totalChunks     int
		uploadedChunks  int
		duration        float64
		jobID           sql.NullString
		resultJSON      sql.NullString
		errorMessage    sql.NullString
		progressPhase   sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		createdRaw      string
		updatedRaw      string
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&subject,
		&statusStr,
		&totalChunks,
		&uploadedChunks,
		&duration,
		&jobID,
		&resultJSON,
		&errorMessage,
		&progressPhase,
		&progressPercent,
		&progressMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	rec := &Recording{
		ID:              id,
		OwnerID:         ownerID,
		Subject:         subject.String,
		Status:          Status(statusStr),
		TotalChunks:     totalChunks,
		UploadedChunks:  uploadedChunks,
		DurationSeconds: duration,
		JobID:           jobID.String,
		ErrorMessage:    errorMessage.String,
		ProgressPhase:   progressPhase.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
	}

	if resultJSON.Valid && strings.TrimSpace(resultJSON.String) != "" {
		var result AnalysisResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("decode result for recording %s: %w", id, err)
		}
		rec.Result = &result
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		rec.UpdatedAt = updated
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
