package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avelling/shelfsync/internal/client"
)

// Poller defaults: 2s, 4s, then capped at 5s, for up to 60 attempts
// (~5 minutes ceiling).
const (
	defaultPollBaseDelay   = 2 * time.Second
	defaultPollMaxDelay    = 5 * time.Second
	defaultPollMaxAttempts = 60
)

// ErrPollTimeout indicates the poller exhausted its attempt budget
// without the backend reaching a terminal status.
var ErrPollTimeout = errors.New("timed out waiting for import job")

// StatusPoller is the backend surface the fallback poller consumes.
type StatusPoller interface {
	JobStatus(ctx context.Context, jobID string) (*client.JobStatusResponse, error)
}

// Poller is the HTTP fallback for a dropped progress stream. It is
// engaged only after a successful handshake followed by a
// disconnect-class receive failure, and projects poll responses into
// the same shapes the streaming path produces so downstream consumers
// are transport-agnostic.
type Poller struct {
	api         StatusPoller
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	log         *slog.Logger
}

// NewPoller creates a fallback poller with the default schedule.
func NewPoller(api StatusPoller, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		api:         api,
		baseDelay:   defaultPollBaseDelay,
		maxDelay:    defaultPollMaxDelay,
		maxAttempts: defaultPollMaxAttempts,
		log:         log,
	}
}

// Poll watches the job-status endpoint until the job completes, fails,
// the attempt budget runs out, or ctx is cancelled. onProgress receives
// each non-terminal status projected as a ProgressUpdate. A completed
// status returns the projected CompletionSummary; a failed status
// returns the backend's error verbatim.
func (p *Poller) Poll(ctx context.Context, jobID string, onProgress func(client.ProgressUpdate)) (*client.CompletionSummary, error) {
	p.log.Info("falling back to status polling", "job_id", jobID)

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := sleepCtx(ctx, p.delay(attempt)); err != nil {
			return nil, err
		}

		status, err := p.api.JobStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Transient poll failures consume an attempt and continue.
			p.log.Warn("status poll failed", "job_id", jobID, "attempt", attempt, "error", err)
			continue
		}

		switch status.Status {
		case client.JobStateCompleted:
			return &client.CompletionSummary{
				SuccessCount: len(status.Books),
				FailureCount: len(status.Errors),
				ResultID:     status.ResultID,
				Books:        status.Books,
				Errors:       status.Errors,
			}, nil

		case client.JobStateFailed:
			msg := status.Error
			if msg == "" {
				msg = "import failed"
			}
			return nil, fmt.Errorf("import job failed: %s", msg)

		default:
			if onProgress != nil {
				onProgress(client.ProgressUpdate{Fraction: status.Progress, Message: status.Message})
			}
		}
	}

	return nil, ErrPollTimeout
}

// delay returns the backoff for the given 1-based attempt: base,
// base*2, then capped at max.
func (p *Poller) delay(attempt int) time.Duration {
	d := p.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.maxDelay {
			return p.maxDelay
		}
	}
	if d > p.maxDelay {
		return p.maxDelay
	}
	return d
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
