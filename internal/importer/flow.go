// Package importer implements the CSV import pipeline client: upload,
// progress streaming with polling fallback, result materialization and
// persistence reconciliation.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avelling/shelfsync/internal/client"
	"github.com/avelling/shelfsync/internal/metrics"
	"github.com/avelling/shelfsync/internal/models"
)

// Status of an import job as seen by the UI.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Update is one progress snapshot published to the UI. Each update
// supersedes the previous one.
type Update struct {
	Status   Status
	Fraction float64
	Message  string
	Result   *Result // set when Status is StatusCompleted
	Err      error   // set when Status is StatusFailed
}

// Result is the final outcome of a completed import.
type Result struct {
	Books   []models.ParsedRecord
	Errors  []models.ImportError
	Created int
	Skipped int
	Failed  int
}

// Service is the backend surface the import flow consumes.
// *client.Client satisfies it.
type Service interface {
	Upload(ctx context.Context, filename string, content io.Reader) (*client.UploadTicket, error)
	StreamProgress(ctx context.Context, jobID, token string, onMessage func(client.Message) error) error
	JobStatus(ctx context.Context, jobID string) (*client.JobStatusResponse, error)
	FetchResults(ctx context.Context, jobID string) (*client.ImportResults, error)
	CancelJob(ctx context.Context, jobID string) error
}

// Flow owns one import job at a time: its streaming/polling loop, its
// cancellation handle and its status. Starting a new run supersedes and
// fully tears down any previous one, so at most one transport or poll
// loop is ever active per flow.
type Flow struct {
	api        Service
	reconciler *Reconciler
	onUpdate   func(Update)
	log        *slog.Logger
	timings    *metrics.Collector

	mu     sync.Mutex
	status Status
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFlow creates an import flow. onUpdate receives every status and
// progress change; it is called from the flow's goroutine and must not
// block.
func NewFlow(api Service, reconciler *Reconciler, onUpdate func(Update), log *slog.Logger) *Flow {
	if log == nil {
		log = slog.Default()
	}
	if onUpdate == nil {
		onUpdate = func(Update) {}
	}
	return &Flow{
		api:        api,
		reconciler: reconciler,
		onUpdate:   onUpdate,
		log:        log,
		timings:    metrics.NewCollector(),
		status:     StatusIdle,
	}
}

// Timings returns the accumulated pipeline phase timings.
func (f *Flow) Timings() metrics.Snapshot {
	return f.timings.Snapshot()
}

// Status returns the current job status.
func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Cancel aborts the active run, if any. The channel is closed with a
// "going away" reason, the backend job is cancelled best-effort, and
// the status returns to idle with no error surfaced.
func (f *Flow) Cancel() {
	f.mu.Lock()
	cancel := f.cancel
	jobID := f.jobID
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if jobID != "" {
		// Best-effort remote cancel; never blocks local cleanup.
		ctx, cancelReq := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancelReq()
		if err := f.api.CancelJob(ctx, jobID); err != nil {
			f.log.Warn("backend job cancel failed", "job_id", jobID, "error", err)
		}
	}
}

// Run imports the CSV file at path. It blocks until the job completes,
// fails or is cancelled; progress is published through onUpdate. Any
// run still active when Run is called is cancelled and awaited first.
func (f *Flow) Run(ctx context.Context, path string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := f.supersede(cancel)
	defer close(done)
	defer f.clearActive(done)

	session := uuid.New().String()[:8]
	log := f.log.With("session", session)

	err := f.run(ctx, path, log)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		// Cancellation is not a failure; no error message is surfaced.
		f.publish(Update{Status: StatusIdle, Message: "Cancelled"})
		return err
	default:
		log.Error("import failed", "error", err)
		f.publish(Update{Status: StatusFailed, Err: err})
		return err
	}
}

func (f *Flow) run(ctx context.Context, path string, log *slog.Logger) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	f.publish(Update{Status: StatusUploading, Message: "Uploading " + filepath.Base(path)})

	start := time.Now()
	ticket, err := f.api.Upload(ctx, filepath.Base(path), file)
	f.timings.RecordTiming(metrics.OpUpload, time.Since(start))
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	f.setJobID(ticket.JobID)
	log.Info("upload accepted", "job_id", ticket.JobID)

	f.publish(Update{Status: StatusProcessing, Message: "Waiting for import to start"})

	start = time.Now()
	summary, err := f.watch(ctx, ticket, log)
	f.timings.RecordTiming(metrics.OpWatch, time.Since(start))
	if err != nil {
		return err
	}

	start = time.Now()
	results, err := materialize(ctx, f.api, ticket.JobID, summary)
	f.timings.RecordTiming(metrics.OpMaterialize, time.Since(start))
	if err != nil {
		return err
	}

	f.publish(Update{Status: StatusProcessing, Fraction: 1, Message: "Saving books"})

	start = time.Now()
	outcome, err := f.reconciler.Reconcile(ctx, results.Books)
	f.timings.RecordTiming(metrics.OpReconcile, time.Since(start))
	if err != nil {
		return err
	}

	result := &Result{
		Books:   results.Books,
		Errors:  results.Errors,
		Created: outcome.Created,
		Skipped: outcome.Skipped,
		Failed:  outcome.Failed,
	}
	log.Info("import completed",
		"job_id", ticket.JobID, "books", len(result.Books), "errors", len(result.Errors))
	if snap := f.timings.Snapshot(); snap.Watch != nil {
		log.Debug("pipeline timings",
			"upload_ms", msOrZero(snap.Upload), "watch_ms", msOrZero(snap.Watch),
			"materialize_ms", msOrZero(snap.Materialize), "reconcile_ms", msOrZero(snap.Reconcile))
	}
	f.publish(Update{Status: StatusCompleted, Fraction: 1, Message: "Import complete", Result: result})
	return nil
}

// watch follows the job over the streaming channel, switching to the
// fallback poller when the stream drops after a successful handshake.
func (f *Flow) watch(ctx context.Context, ticket *client.UploadTicket, log *slog.Logger) (*client.CompletionSummary, error) {
	var (
		summary   *client.CompletionSummary
		serverErr string
	)

	errServerReported := errors.New("server reported pipeline error")

	err := f.api.StreamProgress(ctx, ticket.JobID, ticket.Token, func(msg client.Message) error {
		switch msg.Kind {
		case client.KindProgress:
			f.publish(Update{Status: StatusProcessing, Fraction: msg.Progress.Fraction, Message: msg.Progress.Message})
		case client.KindCompletion:
			summary = msg.Completion
		case client.KindError:
			serverErr = msg.Err
			return errServerReported
		}
		return nil
	})

	switch {
	case errors.Is(err, errServerReported):
		return nil, fmt.Errorf("import failed: %s", serverErr)

	case errors.Is(err, client.ErrStreamDropped):
		// Handshake succeeded but the peer went away: same status
		// surface, different transport.
		poller := NewPoller(f.api, log)
		return poller.Poll(ctx, ticket.JobID, func(p client.ProgressUpdate) {
			f.publish(Update{Status: StatusProcessing, Fraction: p.Fraction, Message: p.Message})
		})

	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("connection lost: %w", err)

	case summary == nil:
		return nil, fmt.Errorf("stream closed without completion")
	}

	return summary, nil
}

// supersede cancels any active run, waits for it to finish, and
// registers the new one. Returns the done channel the caller must close.
func (f *Flow) supersede(cancel context.CancelFunc) chan struct{} {
	f.mu.Lock()
	prevCancel, prevDone := f.cancel, f.done
	f.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	if prevDone != nil {
		<-prevDone
	}

	done := make(chan struct{})
	f.mu.Lock()
	f.cancel = cancel
	f.done = done
	f.jobID = ""
	f.mu.Unlock()
	return done
}

func (f *Flow) clearActive(done chan struct{}) {
	f.mu.Lock()
	if f.done == done {
		f.cancel = nil
		f.done = nil
	}
	f.mu.Unlock()
}

func (f *Flow) setJobID(id string) {
	f.mu.Lock()
	f.jobID = id
	f.mu.Unlock()
}

func msOrZero(s *metrics.OperationSnapshot) int64 {
	if s == nil {
		return 0
	}
	return s.TotalTimeMs
}

func (f *Flow) publish(u Update) {
	f.mu.Lock()
	f.status = u.Status
	f.mu.Unlock()
	f.onUpdate(u)
}
