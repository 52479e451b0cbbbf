// Package bigquery implements the ExpenseStore on a BigQuery table. Rows
// are written through the streaming inserter, which reports per-row insert
// failures; duplicate lookups and listings run as parameterized queries.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/expenseflow/internal/domain"
	"github.com/dvloznov/expenseflow/internal/store"
)

// Default table coordinates; overridable through New.
const (
	DefaultDatasetID = "expenses"
	DefaultTableID   = "expenses"
)

// expenseRow is the BigQuery row schema for one expense record.
type expenseRow struct {
	ExpenseID   string     `bigquery:"expense_id"`
	ExpenseDate civil.Date `bigquery:"expense_date"`
	Description string     `bigquery:"description"`
	Value       float64    `bigquery:"value"`
	Direction   string     `bigquery:"direction"`
	CreatedTS   time.Time  `bigquery:"created_ts"`
}

func (r *expenseRow) toDomain() *domain.Expense {
	return &domain.Expense{
		ID:          r.ExpenseID,
		Date:        r.ExpenseDate,
		Description: r.Description,
		Value:       r.Value,
		Direction:   domain.Direction(r.Direction),
	}
}

// Store is a BigQuery-backed ExpenseStore.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string
	log       zerolog.Logger
}

// New creates a Store with its own BigQuery client. Empty dataset or table
// fall back to the defaults.
func New(ctx context.Context, projectID, datasetID, tableID string, log zerolog.Logger) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: bigquery client: %w", err)
	}
	if datasetID == "" {
		datasetID = DefaultDatasetID
	}
	if tableID == "" {
		tableID = DefaultTableID
	}
	return &Store{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		tableID:   tableID,
		log:       log,
	}, nil
}

// Close releases the underlying BigQuery client.
func (s *Store) Close() error {
	return s.client.Close()
}

// FindDuplicate implements store.ExpenseStore. Direction is deliberately
// not part of the filter.
func (s *Store) FindDuplicate(ctx context.Context, date civil.Date, description string, value float64) (*domain.Expense, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT expense_id, expense_date, description, value, direction, created_ts
		FROM %s.%s
		WHERE expense_date = @expense_date
		  AND description = @description
		  AND value = @value
		LIMIT 1
	`, s.datasetID, s.tableID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "expense_date", Value: date},
		{Name: "description", Value: description},
		{Name: "value", Value: value},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindDuplicate: query read: %w", err)
	}

	var row expenseRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindDuplicate: iter next: %w", err)
	}
	return row.toDomain(), nil
}

// InsertMany implements store.ExpenseStore. Identities are assigned here
// since BigQuery does not return ids; a PutMultiError from the streaming
// inserter is translated into per-item failures rather than a call error.
func (s *Store) InsertMany(ctx context.Context, expenses []*domain.Expense) (*store.InsertResult, error) {
	if len(expenses) == 0 {
		return &store.InsertResult{}, nil
	}

	now := time.Now().UTC()
	rows := make([]*expenseRow, 0, len(expenses))
	ids := make([]string, 0, len(expenses))
	for _, e := range expenses {
		id := uuid.NewString()
		ids = append(ids, id)
		rows = append(rows, &expenseRow{
			ExpenseID:   id,
			ExpenseDate: e.Date,
			Description: e.Description,
			Value:       e.Value,
			Direction:   string(e.Direction),
			CreatedTS:   now,
		})
	}

	inserter := s.client.Dataset(s.datasetID).Table(s.tableID).Inserter()
	err := inserter.Put(ctx, rows)

	var multiErr bigquery.PutMultiError
	if errors.As(err, &multiErr) {
		failed := make(map[int]string, len(multiErr))
		for _, rowErr := range multiErr {
			failed[rowErr.RowIndex] = rowErr.Error()
		}

		result := &store.InsertResult{}
		for i := range rows {
			if reason, ok := failed[i]; ok {
				result.Failed = append(result.Failed, store.InsertFailure{Index: i, Reason: reason})
				continue
			}
			expenses[i].ID = ids[i]
			result.InsertedIDs = append(result.InsertedIDs, ids[i])
		}

		s.log.Warn().
			Int("inserted", len(result.InsertedIDs)).
			Int("failed", len(result.Failed)).
			Msg("Bulk insert partially failed")
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("InsertMany: inserting rows: %w", err)
	}

	for i, e := range expenses {
		e.ID = ids[i]
	}
	return &store.InsertResult{InsertedIDs: ids}, nil
}

// ListAll implements store.ExpenseStore.
func (s *Store) ListAll(ctx context.Context, opts store.ListOptions) ([]*domain.Expense, error) {
	// Sort column comes from a fixed whitelist, never from the caller's
	// string directly.
	column := "expense_date"
	switch opts.SortBy {
	case "", "date":
	case "value":
		column = "value"
	case "description":
		column = "description"
	default:
		return nil, fmt.Errorf("ListAll: unsupported sort field %q", opts.SortBy)
	}
	order := "ASC"
	if opts.Descending {
		order = "DESC"
	}

	q := s.client.Query(fmt.Sprintf(`
		SELECT expense_id, expense_date, description, value, direction, created_ts
		FROM %s.%s
		ORDER BY %s %s, created_ts
	`, s.datasetID, s.tableID, column, order))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListAll: query read: %w", err)
	}

	var result []*domain.Expense
	for {
		var row expenseRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListAll: iter next: %w", err)
		}

		e := row.toDomain()
		if vErr := e.Validate(); vErr != nil {
			// Malformed stored rows are skipped, not fatal.
			s.log.Error().Err(vErr).Str("expense_id", e.ID).Msg("Skipping malformed stored expense")
			continue
		}
		result = append(result, e)
	}

	return result, nil
}

// DeleteAll implements store.ExpenseStore.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	q := s.client.Query(fmt.Sprintf(`DELETE FROM %s.%s WHERE TRUE`, s.datasetID, s.tableID))

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("DeleteAll: running delete query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("DeleteAll: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("DeleteAll: job error: %w", err)
	}

	var deleted int64
	if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
		deleted = qs.NumDMLAffectedRows
	}

	s.log.Warn().Int64("deleted_count", deleted).Msg("Deleted all expenses")
	return deleted, nil
}

// Ensure Store implements the ExpenseStore interface.
var _ store.ExpenseStore = (*Store)(nil)
