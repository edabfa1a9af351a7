package tmdb

import "fmt"

// Error represents a failed call to the metadata provider.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("tmdb %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("tmdb %s: %s: %v", e.Op, e.Message, e.Cause)
	default:
		return fmt.Sprintf("tmdb %s: %s", e.Op, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Temporary reports whether retrying later may succeed.
func (e *Error) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500 || e.StatusCode == 0
}
