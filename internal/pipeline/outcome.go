package pipeline

import "github.com/dvloznov/expenseflow/internal/domain"

// Status classifies the overall result of one ingestion batch.
type Status string

const (
	// StatusSuccess: no per-record errors, and records were persisted or
	// persistence was intentionally skipped.
	StatusSuccess Status = "success"
	// StatusPartialSuccess: some records were accepted, some rejected.
	StatusPartialSuccess Status = "partial_success"
	// StatusError: errors occurred and nothing was accepted or persisted.
	StatusError Status = "error"
	// StatusNoData: nothing to process and nothing went wrong.
	StatusNoData Status = "no_data"
)

// Outcome is the uniform result structure returned by every ingestion entry
// point. ProcessedExpenses holds the accepted records whether or not they
// were persisted; AddedCount counts only durable writes.
type Outcome struct {
	Status            Status            `json:"status"`
	Message           string            `json:"message,omitempty"`
	AddedCount        int               `json:"added_count"`
	ProcessedCount    int               `json:"processed_count"`
	SkippedCount      int               `json:"skipped_count"`
	Errors            []string          `json:"errors"`
	DuplicatesInfo    []string          `json:"duplicates_info"`
	InsertedIDs       []string          `json:"inserted_ids"`
	ProcessedExpenses []*domain.Expense `json:"processed_expenses"`
}

func newOutcome() *Outcome {
	return &Outcome{
		Errors:            []string{},
		DuplicatesInfo:    []string{},
		InsertedIDs:       []string{},
		ProcessedExpenses: []*domain.Expense{},
	}
}

// emptyOutcome reports a batch where extraction found nothing. This is a
// non-error condition, distinct from no_data which means an empty candidate
// list reached the reconciler.
func emptyOutcome(message string) *Outcome {
	o := newOutcome()
	o.Status = StatusSuccess
	o.Message = message
	return o
}

// classify computes the batch status after all candidates were processed
// and any persistence attempt completed.
func (o *Outcome) classify(persist bool) {
	switch {
	case len(o.Errors) == 0 && (o.AddedCount > 0 || !persist):
		if o.ProcessedCount == 0 && o.AddedCount == 0 {
			o.Status = StatusNoData
			return
		}
		o.Status = StatusSuccess
	case len(o.Errors) > 0 && (o.AddedCount > 0 || (!persist && o.ProcessedCount > 0)):
		o.Status = StatusPartialSuccess
	case o.ProcessedCount == 0 && len(o.Errors) == 0:
		o.Status = StatusNoData
	default:
		o.Status = StatusError
	}
}
