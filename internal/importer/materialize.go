package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/avelling/shelfsync/internal/client"
)

// ErrNoResults indicates a completion summary that neither carried
// inline results nor referenced a server-cached result payload.
var ErrNoResults = errors.New("no results available")

// ResultFetcher is the backend surface for retrieving cached full
// results.
type ResultFetcher interface {
	FetchResults(ctx context.Context, jobID string) (*client.ImportResults, error)
}

// materialize turns a completion summary into full import results.
// Lightweight inline summaries are used as-is; summaries referencing a
// cached payload trigger a single fetch. Fetch failures are not retried
// here, the user re-triggers the import. A summary with neither shape
// is a job failure, never a silent empty completion.
func materialize(ctx context.Context, fetcher ResultFetcher, jobID string, summary *client.CompletionSummary) (*client.ImportResults, error) {
	if summary.Inline() {
		return &client.ImportResults{Books: summary.Books, Errors: summary.Errors}, nil
	}
	if summary.ResultID == "" {
		return nil, ErrNoResults
	}

	results, err := fetcher.FetchResults(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("materialize results: %w", err)
	}
	return results, nil
}
