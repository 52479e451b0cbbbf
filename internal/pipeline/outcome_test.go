package pipeline

import "testing"

func TestOutcomeClassify(t *testing.T) {
	tests := []struct {
		name      string
		added     int
		processed int
		errors    int
		persist   bool
		want      Status
	}{
		{"persisted clean", 2, 2, 0, true, StatusSuccess},
		{"persistence skipped clean", 0, 2, 0, false, StatusSuccess},
		{"persisted with rejects", 1, 1, 1, true, StatusPartialSuccess},
		{"skipped persistence with rejects", 0, 1, 1, false, StatusPartialSuccess},
		{"all rejected persisting", 0, 0, 2, true, StatusError},
		{"all rejected not persisting", 0, 0, 2, false, StatusError},
		{"bulk insert total failure", 0, 2, 1, true, StatusError},
		{"nothing at all persisting", 0, 0, 0, true, StatusNoData},
		{"nothing at all not persisting", 0, 0, 0, false, StatusNoData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOutcome()
			o.AddedCount = tt.added
			o.ProcessedCount = tt.processed
			for i := 0; i < tt.errors; i++ {
				o.Errors = append(o.Errors, "boom")
			}
			o.classify(tt.persist)
			if o.Status != tt.want {
				t.Errorf("classify() = %q, want %q", o.Status, tt.want)
			}
		})
	}
}
