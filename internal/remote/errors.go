package remote

import (
	"errors"
	"fmt"
	"time"
)

// ErrThrottled is returned when the local rate limiter refuses a request.
var ErrThrottled = errors.New("remote request throttled")

// DefaultRetryAfter applies when the server asks to back off without saying
// for how long.
const DefaultRetryAfter = 30 * time.Second

// RetryableError reports a transient server refusal. Callers should not
// retry before RetryAfter has elapsed.
type RetryableError struct {
	StatusCode int
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("remote: status %d, retry after %s", e.StatusCode, e.RetryAfter)
}

// RetryAfter extracts the back-off delay from err when it is a
// *RetryableError.
func RetryAfter(err error) (time.Duration, bool) {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}
