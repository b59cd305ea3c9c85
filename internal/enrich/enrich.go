// Package enrich runs follow-on metadata enrichment for newly imported
// books: cover, publisher, language and author-country lookups against
// the backend, patched into the library store.
package enrich

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/avelling/shelfsync/internal/client"
	"github.com/avelling/shelfsync/internal/models"
	"github.com/avelling/shelfsync/internal/store"
)

// queueSize bounds the pending-enrichment buffer. Imports larger than
// this drop the overflow with a warning rather than blocking the
// reconciler.
const queueSize = 512

// perBookTimeout bounds one enrichment round trip.
const perBookTimeout = 15 * time.Second

// MetadataFetcher is the backend surface for metadata lookups.
type MetadataFetcher interface {
	EnrichBook(ctx context.Context, isbn, title, author string) (*client.Enrichment, error)
}

// Library is the store surface the worker reads and patches.
type Library interface {
	GetBook(ctx context.Context, id string) (*models.Book, error)
	ApplyEnrichment(ctx context.Context, id string, e store.Enrichment) error
	SetEnrichError(ctx context.Context, id string, msg string) error
}

// Queue feeds newly created book ids to a single background worker.
// Per-book failures are recorded on the book and logged, never fatal to
// the queue.
type Queue struct {
	api     MetadataFetcher
	library Library
	log     *slog.Logger

	jobs      chan string
	once      sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewQueue creates an enrichment queue. Call Start before enqueueing.
func NewQueue(api MetadataFetcher, library Library, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		api:     api,
		library: library,
		log:     log,
		jobs:    make(chan string, queueSize),
	}
}

// Start launches the worker goroutine. Safe to call more than once;
// only the first call has effect. The worker stops when ctx is
// cancelled.
func (q *Queue) Start(ctx context.Context) {
	q.once.Do(func() {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.run(ctx)
		}()
	})
}

// Enqueue adds book ids to the queue without blocking. Overflow beyond
// the queue capacity is dropped with a warning.
func (q *Queue) Enqueue(ids []string) {
	for _, id := range ids {
		select {
		case q.jobs <- id:
		default:
			q.log.Warn("enrichment queue full, dropping book", "book_id", id)
		}
	}
}

// Close stops accepting new work. The worker drains what is already
// queued and exits. Enqueue must not be called after Close.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.jobs)
	})
}

// Wait blocks until the worker has exited. Call after Close or after
// cancelling the Start context.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-q.jobs:
			if !ok {
				return
			}
			q.enrichOne(ctx, id)
		}
	}
}

func (q *Queue) enrichOne(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(ctx, perBookTimeout)
	defer cancel()

	book, err := q.library.GetBook(ctx, id)
	if err != nil || book == nil {
		q.log.Warn("enrichment: book not readable", "book_id", id, "error", err)
		return
	}

	isbn := ""
	if book.ISBN != nil {
		isbn = *book.ISBN
	}

	meta, err := q.api.EnrichBook(ctx, isbn, book.Title, book.Author)
	if err != nil {
		q.log.Warn("enrichment lookup failed", "book_id", id, "title", book.Title, "error", err)
		if serr := q.library.SetEnrichError(ctx, id, err.Error()); serr != nil {
			q.log.Warn("failed to record enrichment error", "book_id", id, "error", serr)
		}
		return
	}

	if err := q.library.ApplyEnrichment(ctx, id, store.Enrichment{
		CoverURL:      meta.CoverURL,
		Publisher:     meta.Publisher,
		Language:      meta.Language,
		AuthorCountry: meta.AuthorCountry,
	}); err != nil {
		q.log.Warn("failed to apply enrichment", "book_id", id, "error", err)
		return
	}

	q.log.Debug("book enriched", "book_id", id, "title", book.Title)
}
