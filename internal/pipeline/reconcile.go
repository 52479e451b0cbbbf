package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/expenseflow/internal/domain"
	"github.com/dvloznov/expenseflow/internal/extraction"
)

// ReconcileBatch turns raw candidates into accepted expense records with
// full accounting. Every step is reject-and-continue: a bad candidate never
// aborts the batch. The invert flag and the persist flag apply uniformly to
// the whole batch.
//
// Candidates are processed strictly in order. The duplicate check only runs
// when persisting, and only against the store: two identical candidates in
// the same batch are first-wins once the first one is durable, and are not
// deduplicated at all when persistence is skipped.
func (s *Service) ReconcileBatch(ctx context.Context, candidates []extraction.Candidate, invertSigns, persist bool) *Outcome {
	out := newOutcome()
	if len(candidates) == 0 {
		out.Status = StatusNoData
		return out
	}

	s.log.Info().
		Int("candidates", len(candidates)).
		Bool("invert_signs", invertSigns).
		Bool("persist", persist).
		Msg("Reconciling batch")

	var accepted []*domain.Expense
	for i, cand := range candidates {
		// Upstream identity fields are never trusted.
		stripIdentity(cand)

		snippet := descriptionSnippet(cand)
		reject := func(reason string) {
			s.log.Warn().Int("item", i).Str("description", snippet).Str("reason", reason).Msg("Rejecting candidate")
			out.Errors = append(out.Errors, fmt.Sprintf("Item #%d (%s): %s", i, snippet, reason))
		}

		date, reason := candidateDate(cand)
		if reason != "" {
			reject(reason)
			continue
		}

		description := stringField(cand, "description")

		if persist {
			// The lookup needs a numeric value; a candidate without one
			// cannot match anything stored and fails at the value step below.
			if value, ok := numericField(cand, "value"); ok {
				existing, err := s.store.FindDuplicate(ctx, date, description, value)
				if err != nil {
					reject("Duplicate check failed.")
					continue
				}
				if existing != nil {
					s.log.Warn().Int("item", i).Str("date", date.String()).Msg("Skipping duplicate")
					out.SkippedCount++
					out.DuplicatesInfo = append(out.DuplicatesInfo, fmt.Sprintf("DupDB: %s - %s", date, snippet))
					continue
				}
			}
		}

		value, ok := numericField(cand, "value")
		if !ok {
			reject("Invalid or missing value.")
			continue
		}

		// Direction is derived from the sign before any inversion; an
		// explicit valid tag wins over the sign.
		direction := domain.Direction(stringField(cand, "in_out"))
		if !direction.IsValid() {
			direction = domain.DirectionForValue(value)
		}

		expense := &domain.Expense{
			Date:        date,
			Description: description,
			Value:       value,
			Direction:   direction,
		}
		if err := expense.Validate(); err != nil {
			reject("Validation error.")
			continue
		}

		if invertSigns {
			expense.Invert()
		}

		accepted = append(accepted, expense)
	}

	out.ProcessedCount = len(accepted)
	out.ProcessedExpenses = append(out.ProcessedExpenses, accepted...)

	if persist && len(accepted) > 0 {
		result, err := s.store.InsertMany(ctx, accepted)
		if err != nil {
			// Whole-call failure: one error entry, nothing counted as added.
			s.log.Error().Err(err).Msg("Bulk insert failed")
			out.Errors = append(out.Errors, fmt.Sprintf("Database error during bulk insert: %v", err))
		} else {
			out.AddedCount = len(result.InsertedIDs)
			out.InsertedIDs = append(out.InsertedIDs, result.InsertedIDs...)
			for _, f := range result.Failed {
				out.Errors = append(out.Errors, fmt.Sprintf("Store rejected record #%d: %s", f.Index, f.Reason))
			}
		}
	}

	out.classify(persist)

	s.log.Info().
		Str("status", string(out.Status)).
		Int("added", out.AddedCount).
		Int("processed", out.ProcessedCount).
		Int("skipped", out.SkippedCount).
		Int("errors", len(out.Errors)).
		Msg("Batch reconciled")

	return out
}
