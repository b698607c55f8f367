// Package recordings persists recording metadata and chunk references in
// SQLite and exposes the point mutations the upload pipeline drives.
//
// The Store owns schema initialization, the lifecycle transition graph
// (pending -> uploading -> processing -> completed, failed retryable back to
// uploading), and the uploaded_chunks <= total_chunks invariant, which is
// also enforced by a CHECK constraint. All writes are synchronous single
// statements or short transactions so a crash mid-upload never leaves the
// counters and chunk states disagreeing.
//
// Treat this package as the single source of truth for recording semantics;
// when you add fields, update schema.sql and bump schemaVersion.
package recordings
