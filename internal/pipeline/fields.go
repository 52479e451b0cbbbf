package pipeline

import (
	"encoding/json"
	"math"
	"strconv"
	"unicode/utf8"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/expenseflow/internal/extraction"
)

// Candidate fields arrive loosely typed from the extraction model and are
// validated field by field. Nothing upstream-declared is trusted, least of
// all identity fields.

// stripIdentity removes any id fields a candidate may carry. Identities are
// assigned by the store only.
func stripIdentity(c extraction.Candidate) {
	delete(c, "id")
	delete(c, "_id")
}

// stringField returns the value under key if it is a string, else "".
func stringField(c extraction.Candidate, key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// numericField extracts a finite float from the value under key. Numeric
// strings are accepted; the model is not trusted to type amounts correctly.
func numericField(c extraction.Candidate, key string) (float64, bool) {
	v, ok := c[key]
	if !ok || v == nil {
		return 0, false
	}

	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Reject reasons for the date step.
const (
	reasonBadDateFormat = "Invalid date format."
	reasonBadDateType   = "Invalid date type."
	reasonMissingDate   = "Missing or unparseable date."
)

// candidateDate resolves the candidate's date field. An already structured
// date is accepted as-is; a string must be exactly YYYY-MM-DD. Any other
// type, an unparsable string, or absence rejects the candidate with the
// returned reason.
func candidateDate(c extraction.Candidate) (civil.Date, string) {
	v, ok := c["date"]
	if !ok || v == nil {
		return civil.Date{}, reasonMissingDate
	}

	switch val := v.(type) {
	case civil.Date:
		if !val.IsValid() {
			return civil.Date{}, reasonBadDateFormat
		}
		return val, ""
	case string:
		d, err := civil.ParseDate(val)
		if err != nil || !d.IsValid() {
			return civil.Date{}, reasonBadDateFormat
		}
		return d, ""
	default:
		return civil.Date{}, reasonBadDateType
	}
}

// descriptionSnippet returns a truncated description for error and
// duplicate messages. Truncation is by rune so a multi-byte character is
// never split.
func descriptionSnippet(c extraction.Candidate) string {
	desc := stringField(c, "description")
	if utf8.RuneCountInString(desc) <= 20 {
		return desc
	}
	return string([]rune(desc)[:20]) + "..."
}
