package realtime

import "fmt"

// AuthReason why a pending connection was refused
type AuthReason string

const (
	ReasonMissingToken AuthReason = "MISSING_TOKEN"
	ReasonInvalidToken AuthReason = "INVALID_TOKEN"
	ReasonExpiredToken AuthReason = "EXPIRED_TOKEN"
)

// AuthError terminal connection-level failure, raised before any registration
type AuthError struct {
	Reason AuthReason
}

func (e *AuthError) Error() string {
	return "connection rejected: " + string(e.Reason)
}

// ValidationError event-level failure, reported to the sender only
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s %s", e.Field, e.Reason)
}

// PersistenceError durable write failure, reported to the sender only
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "persistence failed: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
