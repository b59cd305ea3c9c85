//go:build integration

// Package store provides integration tests for SurrealDB operations.
package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/avelling/shelfsync/internal/models"
)

var testStore *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testStore, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testStore.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testStore.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

// clearBooks wipes the book table between tests.
func clearBooks(t *testing.T) {
	t.Helper()
	_, err := testStore.Query(context.Background(), `DELETE book`, nil)
	require.NoError(t, err, "clear book table")
}

func TestBulkImportCreatesBooks(t *testing.T) {
	clearBooks(t)
	ctx := context.Background()

	outcome, err := testStore.BulkImport(ctx, []models.ParsedRecord{
		{Title: "Kindred", Author: "Octavia Butler", ISBN: "978-0-8070-8369-7", Year: 1979},
		{Title: "Beloved", Author: "Toni Morrison", Year: 1987},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.Created)
	assert.Zero(t, outcome.Skipped)
	assert.Zero(t, outcome.Failed)
	require.Len(t, outcome.CreatedIDs, 2)

	// Writes went through the background session; they must resolve
	// from this session too.
	resolved, err := testStore.ResolveIDs(ctx, outcome.CreatedIDs)
	require.NoError(t, err)
	assert.Len(t, resolved, 2)
}

func TestBulkImportDeduplicatesByISBN(t *testing.T) {
	clearBooks(t)
	ctx := context.Background()

	first, err := testStore.BulkImport(ctx, []models.ParsedRecord{
		{Title: "Kindred", Author: "Octavia Butler", ISBN: "9780807083697"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, first.Created)

	// Same ISBN, different formatting and casing: skipped.
	second, err := testStore.BulkImport(ctx, []models.ParsedRecord{
		{Title: "KINDRED (reissue)", Author: "O. Butler", ISBN: "978-0-8070-8369-7"},
	})
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, 1, second.Skipped)
}

func TestBulkImportDeduplicatesByTitleAuthor(t *testing.T) {
	clearBooks(t)
	ctx := context.Background()

	first, err := testStore.BulkImport(ctx, []models.ParsedRecord{
		{Title: "Beloved", Author: "Toni Morrison"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, first.Created)

	second, err := testStore.BulkImport(ctx, []models.ParsedRecord{
		{Title: "  beloved ", Author: "TONI MORRISON"},
	})
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, 1, second.Skipped)
}

func TestBulkImportInBatchDuplicates(t *testing.T) {
	clearBooks(t)
	ctx := context.Background()

	outcome, err := testStore.BulkImport(ctx, []models.ParsedRecord{
		{Title: "Kindred", Author: "Octavia Butler", ISBN: "9780807083697"},
		{Title: "Kindred", Author: "Octavia Butler", ISBN: "978-0-8070-8369-7"},
		{Title: "Kindred", Author: "Octavia Butler", ISBN: "9780807083697"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Created)
	assert.Equal(t, 2, outcome.Skipped)
}

func TestGetBookByISBN(t *testing.T) {
	clearBooks(t)
	ctx := context.Background()

	outcome, err := testStore.BulkImport(ctx, []models.ParsedRecord{
		{Title: "Kindred", Author: "Octavia Butler", ISBN: "9780807083697"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Created)

	book, err := testStore.GetBookByISBN(ctx, "978-0-8070-8369-7")
	require.NoError(t, err)
	require.NotNil(t, book)
	assert.Equal(t, "Kindred", book.Title)

	missing, err := testStore.GetBookByISBN(ctx, "9999999999999")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Garbage that cannot be an ISBN resolves to nothing, not an error.
	garbage, err := testStore.GetBookByISBN(ctx, "not-an-isbn")
	require.NoError(t, err)
	assert.Nil(t, garbage)
}

func TestApplyEnrichment(t *testing.T) {
	clearBooks(t)
	ctx := context.Background()

	outcome, err := testStore.BulkImport(ctx, []models.ParsedRecord{
		{Title: "Kindred", Author: "Octavia Butler"},
	})
	require.NoError(t, err)
	require.Len(t, outcome.CreatedIDs, 1)
	id := outcome.CreatedIDs[0]

	require.NoError(t, testStore.SetEnrichError(ctx, id, "lookup timed out"))

	book, err := testStore.GetBook(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, book)
	require.NotNil(t, book.EnrichError)
	assert.Equal(t, "lookup timed out", *book.EnrichError)

	require.NoError(t, testStore.ApplyEnrichment(ctx, id, Enrichment{
		Language:      "en",
		AuthorCountry: "US",
	}))

	book, err = testStore.GetBook(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, book)
	require.NotNil(t, book.Language)
	assert.Equal(t, "en", *book.Language)
	require.NotNil(t, book.AuthorCountry)
	assert.Equal(t, "US", *book.AuthorCountry)
	// A successful enrichment clears the recorded failure.
	assert.Nil(t, book.EnrichError)
}

func TestListBooksFilters(t *testing.T) {
	clearBooks(t)
	ctx := context.Background()

	_, err := testStore.BulkImport(ctx, []models.ParsedRecord{
		{Title: "Kindred", Author: "Octavia Butler", Year: 1979},
		{Title: "Parable of the Sower", Author: "Octavia Butler", Year: 1993},
		{Title: "Beloved", Author: "Toni Morrison", Year: 1987},
	})
	require.NoError(t, err)

	all, err := testStore.ListBooks(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	butler, err := testStore.ListBooks(ctx, ListOptions{Author: "butler"})
	require.NoError(t, err)
	assert.Len(t, butler, 2)

	y1987, err := testStore.ListBooks(ctx, ListOptions{Year: 1987})
	require.NoError(t, err)
	require.Len(t, y1987, 1)
	assert.Equal(t, "Beloved", y1987[0].Title)

	limited, err := testStore.ListBooks(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStats(t *testing.T) {
	clearBooks(t)
	ctx := context.Background()

	outcome, err := testStore.BulkImport(ctx, []models.ParsedRecord{
		{Title: "Kindred", Author: "Octavia Butler", Year: 1979},
		{Title: "Parable of the Sower", Author: "Octavia Butler", Year: 1993},
		{Title: "Beloved", Author: "Toni Morrison", Year: 1987},
	})
	require.NoError(t, err)
	require.Len(t, outcome.CreatedIDs, 3)

	for _, id := range outcome.CreatedIDs[:2] {
		require.NoError(t, testStore.ApplyEnrichment(ctx, id, Enrichment{Language: "en", AuthorCountry: "US"}))
	}

	stats, err := testStore.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalBooks)
	require.Len(t, stats.ByAuthorCountry, 1)
	assert.Equal(t, "US", stats.ByAuthorCountry[0].Key)
	assert.Equal(t, 2, stats.ByAuthorCountry[0].Count)

	// 1970s, 1980s and 1990s each contribute one decade bucket.
	assert.Len(t, stats.ByDecade, 3)
}

func TestResolveIDsEmptyInput(t *testing.T) {
	resolved, err := testStore.ResolveIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, resolved)
}
