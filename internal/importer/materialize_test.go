package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelling/shelfsync/internal/client"
	"github.com/avelling/shelfsync/internal/models"
)

type fakeFetcher struct {
	results *client.ImportResults
	err     error
	calls   int
}

func (f *fakeFetcher) FetchResults(ctx context.Context, jobID string) (*client.ImportResults, error) {
	f.calls++
	return f.results, f.err
}

func TestMaterializeInline(t *testing.T) {
	fetcher := &fakeFetcher{}
	summary := &client.CompletionSummary{
		Books: []models.ParsedRecord{{Title: "Kindred", Author: "Octavia Butler"}},
	}

	results, err := materialize(context.Background(), fetcher, "job-1", summary)
	require.NoError(t, err)

	require.Len(t, results.Books, 1)
	assert.Equal(t, "Kindred", results.Books[0].Title)
	// Inline summaries never hit the network.
	assert.Zero(t, fetcher.calls)
}

func TestMaterializeByResultID(t *testing.T) {
	fetcher := &fakeFetcher{results: &client.ImportResults{
		Books: []models.ParsedRecord{{Title: "Beloved", Author: "Toni Morrison"}},
	}}
	summary := &client.CompletionSummary{ResultID: "r1"}

	results, err := materialize(context.Background(), fetcher, "job-1", summary)
	require.NoError(t, err)
	require.Len(t, results.Books, 1)
	assert.Equal(t, 1, fetcher.calls)
}

func TestMaterializeNoResults(t *testing.T) {
	fetcher := &fakeFetcher{}
	summary := &client.CompletionSummary{SuccessCount: 3}

	_, err := materialize(context.Background(), fetcher, "job-1", summary)
	require.ErrorIs(t, err, ErrNoResults)
}

func TestMaterializeFetchErrorPropagates(t *testing.T) {
	fetcher := &fakeFetcher{err: client.ErrResultsExpired}
	summary := &client.CompletionSummary{ResultID: "r1"}

	_, err := materialize(context.Background(), fetcher, "job-1", summary)
	require.ErrorIs(t, err, client.ErrResultsExpired)
	// A fetch failure is not retried here.
	assert.Equal(t, 1, fetcher.calls)
}
