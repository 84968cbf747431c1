package fetcher

import (
	"errors"
	"fmt"
	"strings"
)

// HTTPError is a non-200 API response. Body carries the server's error text.
type HTTPError struct {
	URL    string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d: %s", e.URL, e.Status, strings.TrimSpace(e.Body))
}

// iso8601Hint is the one server message that makes a 400 retryable: the API
// occasionally rejects a valid `from` with this text under load. Keying on a
// body substring is brittle but is the established server contract.
const iso8601Hint = "ISO 8601 format"

// Fatal reports whether the error must not be retried: bad requests and
// unauthorized requests will fail identically on every attempt.
func (e *HTTPError) Fatal() bool {
	switch e.Status {
	case 401:
		return true
	case 400:
		return !strings.Contains(e.Body, iso8601Hint)
	}
	return false
}

// LogicError marks an invariant violation inside the pipeline. Never retried.
type LogicError struct {
	Err error
}

func (e *LogicError) Error() string { return "logic error: " + e.Err.Error() }
func (e *LogicError) Unwrap() error { return e.Err }

// IsFatal reports whether err should abort without further attempts
// (fatal HTTP status or logic error). Cancellation is handled separately.
func IsFatal(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Fatal()
	}
	var le *LogicError
	return errors.As(err, &le)
}
