package pipeline

import "errors"

// Input errors are rejected before any collaborator is invoked. They are the
// only failures, besides extraction.ErrUnavailable, that propagate out of
// the pipeline as errors; everything else lands in the Outcome.
var (
	// ErrEmptyInput means the submitted text or file had no content.
	ErrEmptyInput = errors.New("input is empty")

	// ErrInvalidEncoding means an uploaded file was not valid UTF-8.
	ErrInvalidEncoding = errors.New("input is not valid UTF-8")
)
