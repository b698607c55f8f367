// Package services holds cross-cutting helpers shared by the upload pipeline:
// the sentinel error taxonomy used to classify attempt failures, and context
// annotation helpers that thread recording/phase/correlation identifiers
// through to structured logging.
//
// Errors are wrapped with a sentinel marker plus phase context so the
// orchestrator boundary can collapse any failure into a user-facing status
// message while tests and logs can still classify the cause with errors.Is.
package services
