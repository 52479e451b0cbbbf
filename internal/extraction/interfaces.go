package extraction

import "context"

// Candidate is one raw transaction produced by the extraction model before
// any validation. Fields arrive loosely typed and must not be trusted;
// the reconciliation layer validates them field by field.
type Candidate map[string]interface{}

// Extractor turns a block of free-form financial text into raw candidates.
// Service failures are reported as errors wrapping ErrUnavailable so callers
// can distinguish them from data problems.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]Candidate, error)
}

// SignInferrer decides whether the monetary signs in the source text are
// inverted relative to the canonical convention (negative = out). It never
// fails: any internal error resolves to false, meaning "do not invert".
type SignInferrer interface {
	InferInverted(ctx context.Context, text string) bool
}
