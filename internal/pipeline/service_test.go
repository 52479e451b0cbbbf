package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/expenseflow/internal/domain"
	"github.com/dvloznov/expenseflow/internal/extraction"
	"github.com/dvloznov/expenseflow/internal/logger"
	"github.com/dvloznov/expenseflow/internal/pipeline"
	"github.com/dvloznov/expenseflow/internal/store"
	"github.com/dvloznov/expenseflow/internal/store/memory"
)

// mockExtractor is a func-field mock for the extraction model.
type mockExtractor struct {
	ExtractFunc func(ctx context.Context, text string) ([]extraction.Candidate, error)
	called      bool
}

func (m *mockExtractor) Extract(ctx context.Context, text string) ([]extraction.Candidate, error) {
	m.called = true
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, text)
	}
	return nil, nil
}

// mockInferrer is a func-field mock for the sign-convention capability.
type mockInferrer struct {
	inverted bool
	called   bool
}

func (m *mockInferrer) InferInverted(ctx context.Context, text string) bool {
	m.called = true
	return m.inverted
}

// mockStore is a func-field mock for the expense store.
type mockStore struct {
	FindDuplicateFunc func(ctx context.Context, date civil.Date, description string, value float64) (*domain.Expense, error)
	InsertManyFunc    func(ctx context.Context, expenses []*domain.Expense) (*store.InsertResult, error)

	findCalls   int
	insertCalls int
}

func (m *mockStore) FindDuplicate(ctx context.Context, date civil.Date, description string, value float64) (*domain.Expense, error) {
	m.findCalls++
	if m.FindDuplicateFunc != nil {
		return m.FindDuplicateFunc(ctx, date, description, value)
	}
	return nil, nil
}

func (m *mockStore) InsertMany(ctx context.Context, expenses []*domain.Expense) (*store.InsertResult, error) {
	m.insertCalls++
	if m.InsertManyFunc != nil {
		return m.InsertManyFunc(ctx, expenses)
	}
	result := &store.InsertResult{}
	for i := range expenses {
		id := fmt.Sprintf("id-%d", i)
		expenses[i].ID = id
		result.InsertedIDs = append(result.InsertedIDs, id)
	}
	return result, nil
}

func (m *mockStore) ListAll(ctx context.Context, opts store.ListOptions) ([]*domain.Expense, error) {
	return nil, nil
}

func (m *mockStore) DeleteAll(ctx context.Context) (int64, error) {
	return 0, nil
}

func testLogger(t *testing.T) zerolog.Logger {
	return logger.NewWithWriter(testWriter{t})
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newService(st store.ExpenseStore, ex extraction.Extractor, signs extraction.SignInferrer, t *testing.T) *pipeline.Service {
	return pipeline.NewService(st, ex, signs, testLogger(t))
}

func candidatesFixture(cands ...extraction.Candidate) *mockExtractor {
	return &mockExtractor{
		ExtractFunc: func(ctx context.Context, text string) ([]extraction.Candidate, error) {
			return cands, nil
		},
	}
}

func TestProcessTextEmptyInput(t *testing.T) {
	ex := &mockExtractor{}
	svc := newService(&mockStore{}, ex, &mockInferrer{}, t)

	for _, input := range []string{"", "   \n\t "} {
		_, err := svc.ProcessText(context.Background(), input, true)
		if !errors.Is(err, pipeline.ErrEmptyInput) {
			t.Errorf("ProcessText(%q) error = %v, want ErrEmptyInput", input, err)
		}
	}
	if ex.called {
		t.Error("Extractor must not be called for empty input")
	}
}

func TestProcessTextExtractionUnavailable(t *testing.T) {
	ex := &mockExtractor{
		ExtractFunc: func(ctx context.Context, text string) ([]extraction.Candidate, error) {
			return nil, fmt.Errorf("%w: timeout", extraction.ErrUnavailable)
		},
	}
	svc := newService(&mockStore{}, ex, &mockInferrer{}, t)

	_, err := svc.ProcessText(context.Background(), "some statement", true)
	if !errors.Is(err, extraction.ErrUnavailable) {
		t.Errorf("ProcessText() error = %v, want wrapped ErrUnavailable", err)
	}
}

func TestProcessTextNoCandidates(t *testing.T) {
	svc := newService(&mockStore{}, candidatesFixture(), &mockInferrer{}, t)

	out, err := svc.ProcessText(context.Background(), "nothing financial here", true)
	if err != nil {
		t.Fatalf("ProcessText failed: %v", err)
	}
	if out.Status != pipeline.StatusSuccess {
		t.Errorf("Status = %q, want %q", out.Status, pipeline.StatusSuccess)
	}
	if out.AddedCount != 0 || out.ProcessedCount != 0 || len(out.Errors) != 0 {
		t.Errorf("Expected zero counts and no errors, got %+v", out)
	}
	if out.Message == "" {
		t.Error("Expected a human-readable message for an empty result")
	}
}

func TestReconcilePartialSuccess(t *testing.T) {
	ex := candidatesFixture(
		extraction.Candidate{"date": "2024-01-05", "description": "Coffee", "value": -4.5, "in_out": "out"},
		extraction.Candidate{"date": "bad-date", "description": "X", "value": 1.0},
	)
	st := memory.NewStore()
	svc := newService(st, ex, &mockInferrer{}, t)

	out, err := svc.ProcessText(context.Background(), "coffee and a broken line", true)
	if err != nil {
		t.Fatalf("ProcessText failed: %v", err)
	}

	if out.Status != pipeline.StatusPartialSuccess {
		t.Errorf("Status = %q, want %q", out.Status, pipeline.StatusPartialSuccess)
	}
	if out.AddedCount != 1 {
		t.Errorf("AddedCount = %d, want 1", out.AddedCount)
	}
	if out.ProcessedCount != 1 {
		t.Errorf("ProcessedCount = %d, want 1", out.ProcessedCount)
	}
	if out.SkippedCount != 0 {
		t.Errorf("SkippedCount = %d, want 0", out.SkippedCount)
	}
	if len(out.Errors) != 1 {
		t.Fatalf("Errors = %v, want exactly one", out.Errors)
	}
	if want := "Item #1 (X): Invalid date format."; out.Errors[0] != want {
		t.Errorf("Errors[0] = %q, want %q", out.Errors[0], want)
	}
	if len(out.InsertedIDs) != 1 {
		t.Errorf("InsertedIDs = %v, want one id", out.InsertedIDs)
	}
	if len(out.ProcessedExpenses) != 1 || out.ProcessedExpenses[0].Description != "Coffee" {
		t.Errorf("ProcessedExpenses = %+v, want the Coffee record", out.ProcessedExpenses)
	}
}

func TestReconcileStructuredDate(t *testing.T) {
	st := memory.NewStore()
	svc := newService(st, &mockExtractor{}, &mockInferrer{}, t)

	out := svc.ReconcileBatch(context.Background(), []extraction.Candidate{
		{"date": civil.Date{Year: 2024, Month: 1, Day: 5}, "description": "Coffee", "value": -4.5, "in_out": "out"},
	}, false, true)

	if len(out.Errors) != 0 {
		t.Fatalf("Errors = %v, want none", out.Errors)
	}
	if out.ProcessedCount != 1 || out.AddedCount != 1 {
		t.Errorf("processed=%d added=%d, want 1 and 1", out.ProcessedCount, out.AddedCount)
	}
	if len(out.ProcessedExpenses) != 1 {
		t.Fatalf("ProcessedExpenses = %+v, want one record", out.ProcessedExpenses)
	}
	if got, want := out.ProcessedExpenses[0].Date, (civil.Date{Year: 2024, Month: 1, Day: 5}); got != want {
		t.Errorf("Date = %v, want %v", got, want)
	}
}

func TestIdempotentResubmission(t *testing.T) {
	ex := candidatesFixture(
		extraction.Candidate{"date": "2024-01-05", "description": "Coffee", "value": -4.5, "in_out": "out"},
	)
	st := memory.NewStore()
	svc := newService(st, ex, &mockInferrer{}, t)
	ctx := context.Background()

	first, err := svc.ProcessText(ctx, "coffee", true)
	if err != nil {
		t.Fatalf("first ProcessText failed: %v", err)
	}
	if first.AddedCount != 1 {
		t.Fatalf("first AddedCount = %d, want 1", first.AddedCount)
	}

	second, err := svc.ProcessText(ctx, "coffee", true)
	if err != nil {
		t.Fatalf("second ProcessText failed: %v", err)
	}
	if second.SkippedCount != 1 {
		t.Errorf("second SkippedCount = %d, want 1", second.SkippedCount)
	}
	if second.AddedCount != 0 {
		t.Errorf("second AddedCount = %d, want 0", second.AddedCount)
	}
	if len(second.DuplicatesInfo) != 1 {
		t.Errorf("second DuplicatesInfo = %v, want one entry", second.DuplicatesInfo)
	}

	all, err := st.ListAll(ctx, store.ListOptions{})
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected a single stored copy, got %d", len(all))
	}
}

func TestSignInversion(t *testing.T) {
	ex := candidatesFixture(
		extraction.Candidate{"date": "2024-03-01", "description": "Refund", "value": 50.0, "in_out": "in"},
	)
	svc := newService(&mockStore{}, ex, &mockInferrer{inverted: true}, t)

	out, err := svc.ProcessText(context.Background(), "inverted source", false)
	if err != nil {
		t.Fatalf("ProcessText failed: %v", err)
	}
	if len(out.ProcessedExpenses) != 1 {
		t.Fatalf("Expected one processed expense, got %d", len(out.ProcessedExpenses))
	}

	e := out.ProcessedExpenses[0]
	if e.Value != -50 {
		t.Errorf("Value = %v, want -50", e.Value)
	}
	if e.Direction != domain.DirectionOut {
		t.Errorf("Direction = %q, want %q", e.Direction, domain.DirectionOut)
	}
}

func TestDirectionDerivedFromSign(t *testing.T) {
	tests := []struct {
		name      string
		candidate extraction.Candidate
		want      domain.Direction
	}{
		{
			name:      "missing tag negative value",
			candidate: extraction.Candidate{"date": "2024-01-05", "description": "Groceries", "value": -45.30},
			want:      domain.DirectionOut,
		},
		{
			name:      "missing tag positive value",
			candidate: extraction.Candidate{"date": "2024-01-10", "description": "Salary", "value": 3500.0},
			want:      domain.DirectionIn,
		},
		{
			name:      "invalid tag",
			candidate: extraction.Candidate{"date": "2024-01-11", "description": "Odd", "value": 7.0, "in_out": "sideways"},
			want:      domain.DirectionIn,
		},
		{
			name:      "explicit tag wins over sign",
			candidate: extraction.Candidate{"date": "2024-01-12", "description": "Chargeback", "value": 12.0, "in_out": "out"},
			want:      domain.DirectionOut,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(&mockStore{}, candidatesFixture(tt.candidate), &mockInferrer{}, t)
			out, err := svc.ProcessText(context.Background(), "text", false)
			if err != nil {
				t.Fatalf("ProcessText failed: %v", err)
			}
			if len(out.ProcessedExpenses) != 1 {
				t.Fatalf("Expected one processed expense, got %+v", out)
			}
			if got := out.ProcessedExpenses[0].Direction; got != tt.want {
				t.Errorf("Direction = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPersistenceSkipped(t *testing.T) {
	st := &mockStore{}
	ex := candidatesFixture(
		extraction.Candidate{"date": "2024-01-05", "description": "Coffee", "value": -4.5, "in_out": "out"},
		extraction.Candidate{"date": "2024-01-05", "description": "Coffee", "value": -4.5, "in_out": "out"},
	)
	svc := newService(st, ex, &mockInferrer{}, t)

	out, err := svc.ProcessText(context.Background(), "coffee twice", false)
	if err != nil {
		t.Fatalf("ProcessText failed: %v", err)
	}

	if st.findCalls != 0 || st.insertCalls != 0 {
		t.Errorf("Store touched with persistence skipped: find=%d insert=%d", st.findCalls, st.insertCalls)
	}
	if out.Status != pipeline.StatusSuccess {
		t.Errorf("Status = %q, want %q", out.Status, pipeline.StatusSuccess)
	}
	if out.AddedCount != 0 {
		t.Errorf("AddedCount = %d, want 0", out.AddedCount)
	}
	// Intra-batch duplicates are not caught without the store lookup.
	if out.ProcessedCount != 2 {
		t.Errorf("ProcessedCount = %d, want 2", out.ProcessedCount)
	}
	if len(out.InsertedIDs) != 0 {
		t.Errorf("InsertedIDs = %v, want none", out.InsertedIDs)
	}
}

func TestBulkInsertTotalFailure(t *testing.T) {
	st := &mockStore{
		InsertManyFunc: func(ctx context.Context, expenses []*domain.Expense) (*store.InsertResult, error) {
			return nil, errors.New("table is on fire")
		},
	}
	ex := candidatesFixture(
		extraction.Candidate{"date": "2024-01-05", "description": "Coffee", "value": -4.5, "in_out": "out"},
	)
	svc := newService(st, ex, &mockInferrer{}, t)

	out, err := svc.ProcessText(context.Background(), "coffee", true)
	if err != nil {
		t.Fatalf("ProcessText failed: %v", err)
	}
	if out.Status != pipeline.StatusError {
		t.Errorf("Status = %q, want %q", out.Status, pipeline.StatusError)
	}
	if out.AddedCount != 0 {
		t.Errorf("AddedCount = %d, want 0", out.AddedCount)
	}
	if len(out.Errors) != 1 {
		t.Errorf("Errors = %v, want exactly one entry", out.Errors)
	}
}

func TestBulkInsertPartialFailure(t *testing.T) {
	st := &mockStore{
		InsertManyFunc: func(ctx context.Context, expenses []*domain.Expense) (*store.InsertResult, error) {
			return &store.InsertResult{
				InsertedIDs: []string{"id-0"},
				Failed:      []store.InsertFailure{{Index: 1, Reason: "schema mismatch"}},
			}, nil
		},
	}
	ex := candidatesFixture(
		extraction.Candidate{"date": "2024-01-05", "description": "Coffee", "value": -4.5, "in_out": "out"},
		extraction.Candidate{"date": "2024-01-06", "description": "Tea", "value": -3.0, "in_out": "out"},
	)
	svc := newService(st, ex, &mockInferrer{}, t)

	out, err := svc.ProcessText(context.Background(), "coffee and tea", true)
	if err != nil {
		t.Fatalf("ProcessText failed: %v", err)
	}
	if out.Status != pipeline.StatusPartialSuccess {
		t.Errorf("Status = %q, want %q", out.Status, pipeline.StatusPartialSuccess)
	}
	if out.AddedCount != 1 {
		t.Errorf("AddedCount = %d, want 1", out.AddedCount)
	}
	if len(out.Errors) != 1 {
		t.Errorf("Errors = %v, want the store rejection", out.Errors)
	}
}

func TestProcessFile(t *testing.T) {
	t.Run("empty file", func(t *testing.T) {
		svc := newService(&mockStore{}, &mockExtractor{}, &mockInferrer{}, t)
		_, err := svc.ProcessFile(context.Background(), "empty.txt", nil, true)
		if !errors.Is(err, pipeline.ErrEmptyInput) {
			t.Errorf("ProcessFile() error = %v, want ErrEmptyInput", err)
		}
	})

	t.Run("invalid encoding", func(t *testing.T) {
		svc := newService(&mockStore{}, &mockExtractor{}, &mockInferrer{}, t)
		_, err := svc.ProcessFile(context.Background(), "binary.txt", []byte{0xff, 0xfe, 0xfd}, true)
		if !errors.Is(err, pipeline.ErrInvalidEncoding) {
			t.Errorf("ProcessFile() error = %v, want ErrInvalidEncoding", err)
		}
	})

	t.Run("valid file", func(t *testing.T) {
		ex := candidatesFixture(
			extraction.Candidate{"date": "2024-01-05", "description": "Coffee", "value": -4.5, "in_out": "out"},
		)
		signs := &mockInferrer{}
		svc := newService(memory.NewStore(), ex, signs, t)

		out, err := svc.ProcessFile(context.Background(), "statement.csv", []byte("2024-01-05,Coffee,-4.50"), true)
		if err != nil {
			t.Fatalf("ProcessFile failed: %v", err)
		}
		if out.Status != pipeline.StatusSuccess {
			t.Errorf("Status = %q, want %q", out.Status, pipeline.StatusSuccess)
		}
		if out.AddedCount != 1 {
			t.Errorf("AddedCount = %d, want 1", out.AddedCount)
		}
		if !signs.called {
			t.Error("Expected sign inference to run for file input")
		}
	})
}
