// Package uploader orchestrates the chunk upload pipeline: connectivity
// probe, sequential chunk delivery, acknowledgment with bounded
// reconciliation, then the asynchronous job status poll. The orchestrator is
// the only component that advances a recording's lifecycle status; everything
// durable lives in the recordings store so attempts survive process restarts.
package uploader
