package payload

import "errors"

// ErrInvalidPayload is returned when the document itself cannot be decoded.
// Malformed campaign records are not errors; they are reported and skipped.
var ErrInvalidPayload = errors.New("invalid campaign payload")
