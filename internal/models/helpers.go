package models

import (
	"fmt"
	"strings"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RecordIDString safely extracts the string ID from a SurrealDB RecordID.
// Returns an error if the ID is not a string type.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

// MustRecordIDString extracts the string ID, panicking if not a string.
// Use only when you're certain the ID is a string (e.g., after DB operations that return strings).
func MustRecordIDString(id surrealmodels.RecordID) string {
	s, err := RecordIDString(id)
	if err != nil {
		panic(err)
	}
	return s
}

// NewBookID builds a book-table record id from its string part.
func NewBookID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("book", id)
}

// NormalizeISBN strips hyphens, spaces and a trailing lowercase check
// digit from an ISBN-10/13 so that equivalent identifiers compare equal.
// Returns "" for input that cannot be an ISBN (wrong length after
// normalization, non-digit characters other than a trailing X).
func NormalizeISBN(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteRune('X')
		case r == '-' || r == ' ':
			// separator, skip
		default:
			return ""
		}
	}
	s := b.String()
	if len(s) != 10 && len(s) != 13 {
		return ""
	}
	// X is only valid as the final ISBN-10 check digit.
	if i := strings.IndexByte(s, 'X'); i >= 0 && (len(s) != 10 || i != 9) {
		return ""
	}
	return s
}

// DedupKey returns the identity key used for import deduplication:
// the normalized ISBN when present, otherwise lowercased title+author.
func (r ParsedRecord) DedupKey() string {
	if isbn := NormalizeISBN(r.ISBN); isbn != "" {
		return "isbn:" + isbn
	}
	return "ta:" + strings.ToLower(strings.TrimSpace(r.Title)) + "|" + strings.ToLower(strings.TrimSpace(r.Author))
}
