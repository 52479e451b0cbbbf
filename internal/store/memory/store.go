// Package memory provides an in-memory ExpenseStore. It backs tests and
// -store=memory local runs; data is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/dvloznov/expenseflow/internal/domain"
	"github.com/dvloznov/expenseflow/internal/store"
)

// Store keeps expense records in a map guarded by a mutex. It is safe for
// concurrent use.
type Store struct {
	mu       sync.RWMutex
	expenses map[string]*domain.Expense
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		expenses: make(map[string]*domain.Expense),
	}
}

// FindDuplicate implements store.ExpenseStore. Matching is on date,
// description and value only; direction is deliberately ignored.
func (s *Store) FindDuplicate(ctx context.Context, date civil.Date, description string, value float64) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.expenses {
		if e.Date == date && e.Description == description && e.Value == value {
			found := *e
			return &found, nil
		}
	}
	return nil, nil
}

// InsertMany implements store.ExpenseStore. Every record is accepted; ids
// are assigned from uuid.
func (s *Store) InsertMany(ctx context.Context, expenses []*domain.Expense) (*store.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &store.InsertResult{}
	for _, e := range expenses {
		stored := *e
		stored.ID = uuid.NewString()
		s.expenses[stored.ID] = &stored
		e.ID = stored.ID
		result.InsertedIDs = append(result.InsertedIDs, stored.ID)
	}
	return result, nil
}

// ListAll implements store.ExpenseStore.
func (s *Store) ListAll(ctx context.Context, opts store.ListOptions) ([]*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		found := *e
		result = append(result, &found)
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if opts.Descending {
			a, b = b, a
		}
		switch opts.SortBy {
		case "value":
			return a.Value < b.Value
		case "description":
			return a.Description < b.Description
		default:
			return a.Date.Before(b.Date)
		}
	})

	return result, nil
}

// DeleteAll implements store.ExpenseStore.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := int64(len(s.expenses))
	s.expenses = make(map[string]*domain.Expense)
	return deleted, nil
}

// Ensure Store implements the ExpenseStore interface.
var _ store.ExpenseStore = (*Store)(nil)
