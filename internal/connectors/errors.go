package connectors

import (
	"fmt"
	"time"
)

// ValidationError reports a missing or invalid field on add/update. It is
// returned synchronously to the caller and never reaches the background layer.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError reports an operation on an unknown connector id.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("connector not found: %s", e.ID)
}

// ConnectionError reports a failed outbound request: either a transport
// failure or a non-success HTTP status.
type ConnectionError struct {
	StatusCode int
	Err        error
}

func (e ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e ConnectionError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that the bounded wait on an outbound request elapsed.
// It is a connection failure, not a validation failure.
type TimeoutError struct {
	Limit time.Duration
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s", e.Limit)
}
