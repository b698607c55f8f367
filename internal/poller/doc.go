// Package poller drives the asynchronous job status loop: NotStarted ->
// Polling -> {Completed, Failed, TimedOut, Cancelled}. Transport errors are
// retried inside the attempt budget, cancellation is cooperative at tick
// boundaries, and a completion without a result payload is softened into a
// placeholder result rather than treated as an error.
package poller
