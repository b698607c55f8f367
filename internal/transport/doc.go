// Package transport implements the HTTP contract between the client and the
// meetIQ backend: chunk upload, upload acknowledgment, and job status. Calls
// are point-in-time requests with typed failures; the orchestrator owns all
// retry and reconciliation policy.
package transport
