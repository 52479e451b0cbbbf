// Package store defines the document-store abstraction the ingestion
// pipeline writes to. Implementations live in subpackages; the pipeline
// depends only on the ExpenseStore interface and receives the handle
// explicitly, never through package-level state.
package store

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/expenseflow/internal/domain"
)

// Sort fields accepted by ListOptions.SortBy.
const (
	SortByDate        = "date"
	SortByValue       = "value"
	SortByDescription = "description"
)

// ListOptions controls ordering of ListAll results.
type ListOptions struct {
	// SortBy is one of the SortBy* constants. Empty means SortByDate.
	SortBy string
	// Descending orders newest/largest first when true.
	Descending bool
}

// InsertFailure describes one record a bulk insert rejected.
type InsertFailure struct {
	// Index is the position of the record in the InsertMany input.
	Index  int
	Reason string
}

// InsertResult reports the per-item outcome of a bulk insert. A store must
// never assume all-or-nothing: some records may land while others fail.
type InsertResult struct {
	// InsertedIDs holds the store-assigned identities of the records that
	// were durably written, in input order.
	InsertedIDs []string
	Failed      []InsertFailure
}

// ExpenseStore is the persistent collection of expense records.
type ExpenseStore interface {
	// FindDuplicate returns an existing record with identical date,
	// description and value, or nil if none exists.
	FindDuplicate(ctx context.Context, date civil.Date, description string, value float64) (*domain.Expense, error)

	// InsertMany bulk-writes the records, assigning each inserted record
	// its store identity. A returned error means the whole call failed;
	// partial failures are reported through the result instead.
	InsertMany(ctx context.Context, expenses []*domain.Expense) (*InsertResult, error)

	// ListAll returns every stored record, ordered per opts.
	ListAll(ctx context.Context, opts ListOptions) ([]*domain.Expense, error)

	// DeleteAll clears the whole collection and returns the number of
	// records removed.
	DeleteAll(ctx context.Context) (int64, error)
}
