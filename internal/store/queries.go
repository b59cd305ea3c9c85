// Package store provides SurrealDB query functions for library operations.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"

	"github.com/avelling/shelfsync/internal/models"
)

// GetBook retrieves a book by ID. Returns nil if not found.
func (c *Client) GetBook(ctx context.Context, id string) (*models.Book, error) {
	results, err := surrealdb.Query[[]models.Book](ctx, c.db, `
		SELECT * FROM type::record("book", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// GetBookByISBN retrieves a book by its normalized ISBN.
// Returns nil if not found or if isbn does not normalize.
func (c *Client) GetBookByISBN(ctx context.Context, isbn string) (*models.Book, error) {
	norm := models.NormalizeISBN(isbn)
	if norm == "" {
		return nil, nil
	}

	results, err := surrealdb.Query[[]models.Book](ctx, c.db, `
		SELECT * FROM book WHERE isbn_norm = $isbn LIMIT 1
	`, map[string]any{"isbn": norm})
	if err != nil {
		return nil, fmt.Errorf("get book by isbn: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// ListOptions configures book listing.
type ListOptions struct {
	Author string
	Year   int
	Label  string
	Limit  int
}

// ListBooks returns library books with optional filtering, most
// recently added first.
func (c *Client) ListBooks(ctx context.Context, opts ListOptions) ([]models.Book, error) {
	var clauses []string
	vars := map[string]any{}

	if opts.Author != "" {
		clauses = append(clauses, "string::lowercase(author) CONTAINS $author")
		vars["author"] = strings.ToLower(opts.Author)
	}
	if opts.Year != 0 {
		clauses = append(clauses, "year = $year")
		vars["year"] = opts.Year
	}
	if opts.Label != "" {
		clauses = append(clauses, "labels CONTAINS $label")
		vars["label"] = opts.Label
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	vars["limit"] = limit

	sql := fmt.Sprintf(`SELECT * FROM book %s ORDER BY created_at DESC LIMIT $limit`, where)
	results, err := surrealdb.Query[[]models.Book](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}

	if results != nil && len(*results) > 0 {
		return (*results)[0].Result, nil
	}
	return []models.Book{}, nil
}

// ResolveIDs returns the subset of ids that are visible in this
// session. Used by the import reconciler to confirm that records
// written through the background session have become readable here.
func (c *Client) ResolveIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	results, err := surrealdb.Query[[]struct {
		ID string `json:"id"`
	}](ctx, c.db, `
		SELECT record::id(id) AS id FROM book WHERE record::id(id) IN $ids
	`, map[string]any{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("resolve ids: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	resolved := make([]string, 0, len((*results)[0].Result))
	for _, row := range (*results)[0].Result {
		resolved = append(resolved, row.ID)
	}
	return resolved, nil
}

// createImportedBook creates one book from a parsed import record.
func (c *Client) createImportedBook(ctx context.Context, id string, rec models.ParsedRecord) error {
	vars := map[string]any{
		"id":     id,
		"title":  rec.Title,
		"author": rec.Author,
	}
	if norm := models.NormalizeISBN(rec.ISBN); norm != "" {
		vars["isbn"] = rec.ISBN
		vars["isbn_norm"] = norm
	}
	if rec.Publisher != "" {
		vars["publisher"] = rec.Publisher
	}
	if rec.Year != 0 {
		vars["year"] = rec.Year
	}
	if rec.CoverURL != "" {
		vars["cover_url"] = rec.CoverURL
	}
	if rec.EnrichError != "" {
		vars["enrich_error"] = rec.EnrichError
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("book", $id) SET
			title = $title,
			author = $author,
			isbn = $isbn,
			isbn_norm = $isbn_norm,
			publisher = $publisher,
			year = $year,
			cover_url = $cover_url,
			enrich_error = $enrich_error,
			labels = []
	`, vars)
	if err != nil {
		return wrapQueryError(err)
	}
	return nil
}

// bookExists checks whether a record's identity (normalized ISBN, or
// title+author when no usable ISBN) is already in the library.
func (c *Client) bookExists(ctx context.Context, rec models.ParsedRecord) (bool, error) {
	var sql string
	vars := map[string]any{}

	if norm := models.NormalizeISBN(rec.ISBN); norm != "" {
		sql = `SELECT count() AS c FROM book WHERE isbn_norm = $isbn`
		vars["isbn"] = norm
	} else {
		sql = `SELECT count() AS c FROM book
			WHERE string::lowercase(title) = $title AND string::lowercase(author) = $author`
		vars["title"] = strings.ToLower(strings.TrimSpace(rec.Title))
		vars["author"] = strings.ToLower(strings.TrimSpace(rec.Author))
	}

	results, err := surrealdb.Query[[]struct{ C int }](ctx, c.db, sql, vars)
	if err != nil {
		return false, fmt.Errorf("check book exists: %w", err)
	}

	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].C > 0, nil
	}
	return false, nil
}

// BulkImport persists parsed import records through an isolated store
// session, deduplicating against the existing library. Per-record
// failures are counted, not fatal. Returns counts and the ids of newly
// created books; the caller is responsible for confirming those ids
// resolve in its own session before depending on them.
func (c *Client) BulkImport(ctx context.Context, records []models.ParsedRecord) (*models.ImportOutcome, error) {
	// Dedicated session: bulk writes must never go through the
	// foreground connection.
	bg, err := NewClient(ctx, c.cfg, c.log)
	if err != nil {
		return nil, fmt.Errorf("open import session: %w", err)
	}
	defer func() { _ = bg.Close(context.WithoutCancel(ctx)) }()

	outcome := &models.ImportOutcome{}
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Dedup within the batch itself first.
		key := rec.DedupKey()
		if _, dup := seen[key]; dup {
			outcome.Skipped++
			continue
		}
		seen[key] = struct{}{}

		exists, err := bg.bookExists(ctx, rec)
		if err != nil {
			c.log.Warn("import dedup check failed", "title", rec.Title, "error", err)
			outcome.Failed++
			continue
		}
		if exists {
			outcome.Skipped++
			continue
		}

		id := uuid.New().String()
		if err := bg.createImportedBook(ctx, id, rec); err != nil {
			c.log.Warn("import create failed", "title", rec.Title, "error", err)
			outcome.Failed++
			continue
		}
		outcome.Created++
		outcome.CreatedIDs = append(outcome.CreatedIDs, id)
	}

	return outcome, nil
}

// Enrichment holds backend-supplied metadata to patch onto a book.
// Empty fields leave the existing value untouched.
type Enrichment struct {
	CoverURL      string
	Publisher     string
	Language      string
	AuthorCountry string
}

// ApplyEnrichment patches backend-supplied metadata onto a book,
// clearing any previous enrichment error.
func (c *Client) ApplyEnrichment(ctx context.Context, id string, e Enrichment) error {
	vars := map[string]any{"id": id}
	set := func(key, val string) {
		if val != "" {
			vars[key] = val
		}
	}
	set("cover_url", e.CoverURL)
	set("publisher", e.Publisher)
	set("language", e.Language)
	set("author_country", e.AuthorCountry)

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("book", $id) SET
			cover_url = $cover_url ?? cover_url,
			publisher = $publisher ?? publisher,
			language = $language ?? language,
			author_country = $author_country ?? author_country,
			enrich_error = NONE,
			updated_at = time::now()
	`, vars)
	if err != nil {
		return fmt.Errorf("apply enrichment: %w", err)
	}
	return nil
}

// SetEnrichError records a per-book enrichment failure.
func (c *Client) SetEnrichError(ctx context.Context, id string, msg string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("book", $id) SET
			enrich_error = $msg,
			updated_at = time::now()
	`, map[string]any{"id": id, "msg": msg})
	if err != nil {
		return fmt.Errorf("set enrich error: %w", err)
	}
	return nil
}

// StatGroup is one aggregate bucket in the library statistics.
type StatGroup struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// LibraryStats aggregates the cultural-diversity view of the library.
type LibraryStats struct {
	TotalBooks      int
	ByAuthorCountry []StatGroup
	ByLanguage      []StatGroup
	ByDecade        []StatGroup
}

// Stats computes library aggregates for the stats command.
func (c *Client) Stats(ctx context.Context) (*LibraryStats, error) {
	stats := &LibraryStats{}

	totals, err := surrealdb.Query[[]struct{ C int }](ctx, c.db,
		`SELECT count() AS c FROM book GROUP ALL`, nil)
	if err != nil {
		return nil, fmt.Errorf("count books: %w", err)
	}
	if totals != nil && len(*totals) > 0 && len((*totals)[0].Result) > 0 {
		stats.TotalBooks = (*totals)[0].Result[0].C
	}

	group := func(sql string) ([]StatGroup, error) {
		results, err := surrealdb.Query[[]StatGroup](ctx, c.db, sql, nil)
		if err != nil {
			return nil, err
		}
		if results != nil && len(*results) > 0 {
			return (*results)[0].Result, nil
		}
		return nil, nil
	}

	if stats.ByAuthorCountry, err = group(`
		SELECT author_country AS key, count() AS count FROM book
		WHERE author_country != NONE GROUP BY key ORDER BY count DESC
	`); err != nil {
		return nil, fmt.Errorf("group by author country: %w", err)
	}

	if stats.ByLanguage, err = group(`
		SELECT language AS key, count() AS count FROM book
		WHERE language != NONE GROUP BY key ORDER BY count DESC
	`); err != nil {
		return nil, fmt.Errorf("group by language: %w", err)
	}

	if stats.ByDecade, err = group(`
		SELECT <string>(math::floor(year / 10) * 10) AS key, count() AS count FROM book
		WHERE year != NONE GROUP BY key ORDER BY key
	`); err != nil {
		return nil, fmt.Errorf("group by decade: %w", err)
	}

	return stats, nil
}
