// Package models defines data structures for the shelfsync library.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Book represents a persisted library book.
type Book struct {
	ID            surrealmodels.RecordID `json:"id"`
	Title         string                 `json:"title"`
	Author        string                 `json:"author"`
	ISBN          *string                `json:"isbn,omitempty"`
	Publisher     *string                `json:"publisher,omitempty"`
	Year          *int                   `json:"year,omitempty"`
	CoverURL      *string                `json:"cover_url,omitempty"`
	Language      *string                `json:"language,omitempty"`
	AuthorCountry *string                `json:"author_country,omitempty"`
	Labels        []string               `json:"labels,omitempty"`
	EnrichError   *string                `json:"enrich_error,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// ParsedRecord is one successfully parsed CSV row, as returned by the
// backend import pipeline. It exists only between result materialization
// and persistence; once saved it becomes a Book.
type ParsedRecord struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	Year        int    `json:"year,omitempty"`
	CoverURL    string `json:"cover_url,omitempty"`
	EnrichError string `json:"enrich_error,omitempty"`
}

// ImportError is a (title, message) pair for one failed CSV row.
// Surfaced for the session only, never persisted.
type ImportError struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// ImportOutcome summarizes a bulk import into the local store.
// CreatedIDs holds the identifiers of newly created books; every one of
// them must become resolvable in the foreground store session before
// enrichment may run against it.
type ImportOutcome struct {
	Created    int
	Skipped    int
	Failed     int
	CreatedIDs []string
}
