package poller

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"meetiq/internal/logging"
	"meetiq/internal/recordings"
	"meetiq/internal/transport"
)

// State is the poller's position in its lifecycle.
type State string

const (
	StateNotStarted State = "not_started"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateTimedOut   State = "timed_out"
	StateCancelled  State = "cancelled"
)

// placeholderSummary is attached when the backend reports completion without
// a result payload. Deliberately lenient: a backend omission should not block
// the user from seeing their recording complete.
const placeholderSummary = "processing completed but no summary available"

// StatusChecker is the transport surface the poller needs.
type StatusChecker interface {
	CheckJobStatus(ctx context.Context, jobID string) (*transport.JobStatus, error)
}

// Options bound the poll loop. Progress estimates rise monotonically from
// Floor toward Ceiling across the attempt budget; the real completion signal
// comes from the backend, not the estimate.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	Floor       float64
	Ceiling     float64
}

// ProgressFunc receives the estimated progress fraction and a status message
// once per attempt.
type ProgressFunc func(progress float64, message string)

// Outcome is the terminal result of one poll run.
type Outcome struct {
	State    State
	Result   *recordings.AnalysisResult
	ErrorMsg string
	Attempts int
}

// Poller drives checkJobStatus until a terminal state, the attempt budget, or
// cancellation. One Poller per run; construct fresh for each job.
type Poller struct {
	checker    StatusChecker
	opts       Options
	logger     *slog.Logger
	onProgress ProgressFunc
	state      State
}

// New constructs a poller. A nil logger disables logging; a nil onProgress
// disables progress callbacks.
func New(checker StatusChecker, opts Options, logger *slog.Logger, onProgress ProgressFunc) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 120
	}
	if opts.Ceiling <= opts.Floor {
		opts.Floor, opts.Ceiling = 0.0, 1.0
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Poller{
		checker:    checker,
		opts:       opts,
		logger:     logging.NewComponentLogger(logger, "poller"),
		onProgress: onProgress,
		state:      StateNotStarted,
	}
}

// State returns the poller's current state. Not safe for concurrent use with
// Run; observers should rely on progress callbacks instead.
func (p *Poller) State() State {
	return p.state
}

// Run polls jobID until terminal. The cancelled flag is observed
// cooperatively at the top of each tick, so an in-flight HTTP call always
// completes before the loop exits; pass nil when cancellation is driven
// purely by ctx.
func (p *Poller) Run(ctx context.Context, jobID string, cancelled func() bool) Outcome {
	p.state = StatePolling
	logger := p.logger.With(logging.String(logging.FieldJobID, jobID))

	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		if cancelled != nil && cancelled() {
			logger.Info("poll cancelled by caller", logging.Int("attempt", attempt))
			p.state = StateCancelled
			return Outcome{State: StateCancelled, Attempts: attempt - 1}
		}
		select {
		case <-ctx.Done():
			p.state = StateCancelled
			return Outcome{State: StateCancelled, Attempts: attempt - 1}
		default:
		}

		status, err := p.checker.CheckJobStatus(ctx, jobID)
		switch {
		case err != nil:
			// Transient transport failures burn an attempt but are not
			// terminal; the budget bounds total wall-clock time either way.
			logger.Warn("job status check failed",
				logging.Error(err),
				logging.Int("attempt", attempt),
				logging.String(logging.FieldEventType, "poll_check_failed"),
			)
		case status.Failed():
			msg := strings.TrimSpace(status.Error)
			if msg == "" {
				msg = "processing failed"
			}
			logger.Info("job failed",
				logging.Int("attempt", attempt),
				logging.String("job_error", msg),
			)
			p.state = StateFailed
			return Outcome{State: StateFailed, ErrorMsg: msg, Attempts: attempt}
		case status.Succeeded():
			result := status.Result
			if result == nil {
				result = &recordings.AnalysisResult{
					FinancialProducts: []string{},
					MeetingSummary:    []string{placeholderSummary},
					ActionItems:       []string{},
					ConfidenceLevel:   "low",
				}
				logger.Warn("job completed without result payload; synthesizing placeholder",
					logging.Int("attempt", attempt),
					logging.String(logging.FieldEventType, "poll_empty_result"),
				)
			}
			logger.Info("job completed", logging.Int("attempt", attempt))
			p.state = StateCompleted
			return Outcome{State: StateCompleted, Result: result, Attempts: attempt}
		default:
			logger.Debug("job still processing",
				logging.Int("attempt", attempt),
				logging.String("job_status", status.Status),
			)
		}

		p.publishProgress(attempt)

		if attempt == p.opts.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			p.state = StateCancelled
			return Outcome{State: StateCancelled, Attempts: attempt}
		case <-time.After(p.opts.Interval):
		}
	}

	logger.Warn("poll attempt budget exhausted",
		logging.Int("attempts", p.opts.MaxAttempts),
		logging.String(logging.FieldEventType, "poll_timeout"),
	)
	p.state = StateTimedOut
	return Outcome{
		State:    StateTimedOut,
		ErrorMsg: "processing timed out; check again later",
		Attempts: p.opts.MaxAttempts,
	}
}

func (p *Poller) publishProgress(attempt int) {
	if p.onProgress == nil {
		return
	}
	span := p.opts.Ceiling - p.opts.Floor
	fraction := float64(attempt) / float64(p.opts.MaxAttempts)
	progress := p.opts.Floor + span*fraction
	if progress > p.opts.Ceiling {
		progress = p.opts.Ceiling
	}
	p.onProgress(progress, "Processing meeting audio")
}
