package domain

import (
	"fmt"
	"math"

	"cloud.google.com/go/civil"
)

// Direction classifies an expense as money in or money out. The direction
// tag is the authoritative classifier; the sign of Value encodes the same
// information under the canonical convention (negative = out, positive = in).
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// IsValid reports whether d is one of the two known directions.
func (d Direction) IsValid() bool {
	return d == DirectionIn || d == DirectionOut
}

// DirectionForValue derives a direction from the sign of a value under the
// canonical convention: non-negative means "in", negative means "out".
func DirectionForValue(v float64) Direction {
	if v >= 0 {
		return DirectionIn
	}
	return DirectionOut
}

// Expense is one validated financial transaction. ID is assigned by the
// store on insert and is empty for records that were never persisted.
// Date carries no time component; its JSON form is "YYYY-MM-DD".
type Expense struct {
	ID          string     `json:"id,omitempty"`
	Date        civil.Date `json:"date"`
	Description string     `json:"description"`
	Value       float64    `json:"value"`
	Direction   Direction  `json:"in_out"`
}

// Validate checks the record invariants: a valid calendar date, a finite
// value and a known direction.
func (e *Expense) Validate() error {
	if !e.Date.IsValid() {
		return fmt.Errorf("expense: invalid date %v", e.Date)
	}
	if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
		return fmt.Errorf("expense: value %v is not finite", e.Value)
	}
	if !e.Direction.IsValid() {
		return fmt.Errorf("expense: invalid direction %q", e.Direction)
	}
	return nil
}

// Invert negates the value and re-derives the direction from the new sign.
// Used when the source material follows the opposite sign convention.
func (e *Expense) Invert() {
	e.Value = -e.Value
	e.Direction = DirectionForValue(e.Value)
}
