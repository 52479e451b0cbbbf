// Package pipeline implements the ingestion and reconciliation pipeline:
// free-form financial text goes through the extraction model, the resulting
// candidates are validated, deduplicated and normalized one by one, and the
// accepted records are conditionally bulk-written to the expense store.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/dvloznov/expenseflow/internal/extraction"
	"github.com/dvloznov/expenseflow/internal/store"
)

// Service runs end-to-end ingestion batches. All collaborators are passed
// in explicitly; the service holds no ambient state beyond the logger.
type Service struct {
	store     store.ExpenseStore
	extractor extraction.Extractor
	signs     extraction.SignInferrer
	log       zerolog.Logger
}

// NewService wires a pipeline service from its collaborators.
func NewService(st store.ExpenseStore, ex extraction.Extractor, signs extraction.SignInferrer, log zerolog.Logger) *Service {
	return &Service{
		store:     st,
		extractor: ex,
		signs:     signs,
		log:       log,
	}
}

// ProcessText ingests a raw text submission. Empty or whitespace-only text
// is rejected with ErrEmptyInput before any collaborator is called.
// Extraction failures propagate (wrapping extraction.ErrUnavailable); all
// per-record problems are captured in the returned Outcome instead.
func (s *Service) ProcessText(ctx context.Context, text string, persist bool) (*Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	s.log.Info().Int("length", len(text)).Bool("persist", persist).Msg("Processing text input")
	return s.process(ctx, text, persist, "No actionable data found in text.")
}

// ProcessFile ingests the contents of an uploaded file. The bytes must be
// non-empty, valid UTF-8; decode failures are reported, never silently
// replaced.
func (s *Service) ProcessFile(ctx context.Context, filename string, data []byte, persist bool) (*Outcome, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("file %q: %w", filename, ErrEmptyInput)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("file %q: %w", filename, ErrInvalidEncoding)
	}

	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("file %q: %w", filename, ErrEmptyInput)
	}

	s.log.Info().Str("filename", filename).Int("bytes", len(data)).Bool("persist", persist).Msg("Processing uploaded file")
	return s.process(ctx, text, persist, "No actionable data found in file.")
}

// process runs sign inference and extraction, then reconciles the batch.
// The two model calls have no data dependency and run concurrently; both
// complete before reconciliation starts. Sign inference cannot fail - its
// fallback is "no inversion".
func (s *Service) process(ctx context.Context, text string, persist bool, emptyMessage string) (*Outcome, error) {
	invertCh := make(chan bool, 1)
	go func() {
		invertCh <- s.signs.InferInverted(ctx, text)
	}()

	candidates, err := s.extractor.Extract(ctx, text)
	invert := <-invertCh
	if err != nil {
		return nil, fmt.Errorf("extracting transactions: %w", err)
	}

	if len(candidates) == 0 {
		s.log.Info().Msg("Extraction returned no candidates")
		return emptyOutcome(emptyMessage), nil
	}

	return s.ReconcileBatch(ctx, candidates, invert, persist), nil
}
