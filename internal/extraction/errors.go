package extraction

import "errors"

// ErrUnavailable marks a failure of the extraction service itself (network,
// quota, malformed model response) as opposed to bad data in the input.
var ErrUnavailable = errors.New("extraction service unavailable")
