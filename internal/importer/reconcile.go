package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avelling/shelfsync/internal/models"
)

// Visibility wait defaults: the bulk import runs in a store session
// isolated from the foreground reader, so newly created books are not
// guaranteed to be immediately visible there.
const (
	defaultVisibilityInterval = 250 * time.Millisecond
	defaultVisibilityTimeout  = 5 * time.Second
)

// ErrNothingToSave indicates the import produced zero records. Treated
// as a no-op failure, not an exception.
var ErrNothingToSave = errors.New("nothing to save")

// BulkImporter runs a deduplicating bulk import on a background-isolated
// store session.
type BulkImporter interface {
	BulkImport(ctx context.Context, records []models.ParsedRecord) (*models.ImportOutcome, error)
}

// Resolver reports which of the given identifiers are visible in the
// foreground store session.
type Resolver interface {
	ResolveIDs(ctx context.Context, ids []string) ([]string, error)
}

// Enricher accepts newly created book identifiers for follow-on
// metadata enrichment. Enqueue must not block.
type Enricher interface {
	Enqueue(ids []string)
}

// Reconciler persists materialized import results and confirms the new
// records are visible to the foreground session before handing them to
// enrichment. The visibility wait is a required step, not an
// optimization: skipping it makes enrichment silently operate on an
// empty set.
type Reconciler struct {
	importer BulkImporter
	resolver Resolver
	enricher Enricher
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
}

// NewReconciler creates a reconciler with the default visibility wait.
func NewReconciler(importer BulkImporter, resolver Resolver, enricher Enricher, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		importer: importer,
		resolver: resolver,
		enricher: enricher,
		interval: defaultVisibilityInterval,
		timeout:  defaultVisibilityTimeout,
		log:      log,
	}
}

// Reconcile saves the records through the background import, waits for
// the created identifiers to resolve in the foreground session (bounded
// by the visibility timeout), then enqueues them for enrichment.
// Returns ErrNothingToSave for empty input; import failures propagate
// with the underlying message.
func (r *Reconciler) Reconcile(ctx context.Context, records []models.ParsedRecord) (*models.ImportOutcome, error) {
	if len(records) == 0 {
		return nil, ErrNothingToSave
	}

	outcome, err := r.importer.BulkImport(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("bulk import: %w", err)
	}
	r.log.Info("bulk import finished",
		"created", outcome.Created, "skipped", outcome.Skipped, "failed", outcome.Failed)

	if len(outcome.CreatedIDs) > 0 {
		if err := WaitVisible(ctx, r.resolver, outcome.CreatedIDs, r.interval, r.timeout); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Timed out: enrichment proceeds against whatever resolved.
			r.log.Warn("created books not fully visible before timeout",
				"count", len(outcome.CreatedIDs), "error", err)
		}
		r.enricher.Enqueue(outcome.CreatedIDs)
	}

	return outcome, nil
}

// WaitVisible polls resolver until every id in ids resolves, or the
// timeout elapses, whichever first. The interval schedule lives here so
// the timing policy is centrally tunable and testable rather than
// scattered across ad hoc sleep loops.
func WaitVisible(ctx context.Context, resolver Resolver, ids []string, interval, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	want := len(ids)

	for {
		resolved, err := resolver.ResolveIDs(ctx, ids)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Resolution errors are retried until the deadline.
		} else if len(resolved) >= want {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("visibility wait: %d of %d ids resolved before timeout", lenOrZero(resolved, err), want)
		}
		if err := sleepCtx(ctx, interval); err != nil {
			return err
		}
	}
}

func lenOrZero(resolved []string, err error) int {
	if err != nil {
		return 0
	}
	return len(resolved)
}
