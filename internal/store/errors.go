// Package store provides error types for library store operations.
package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for store operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAlreadyExists indicates a book with the same identity already
	// exists, typically from the unique ISBN index during concurrent
	// imports.
	ErrAlreadyExists = errors.New("book already exists")

	// ErrTransactionConflict indicates a SurrealDB transaction conflict.
	// Callers should typically retry or skip the operation.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrNotFound indicates the requested book does not exist.
	ErrNotFound = errors.New("book not found")
)

// wrapQueryError inspects a SurrealDB error and wraps it with the
// appropriate sentinel error if it's a known query error type. Returns
// the original error otherwise.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "already exists") {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, msg)
		}
		if strings.Contains(msg, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
	}

	return err
}
