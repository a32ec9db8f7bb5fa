package remote

import (
	"errors"
	"fmt"
	"time"
)

// ErrRepoNotConfigured is returned when the datastore repository does not
// exist yet. Callers offer a setup flow instead of a retry.
var ErrRepoNotConfigured = errors.New("datastore repository not found; set up the repository first")

// AuthError means the credential is missing, expired or revoked.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string { return "authentication failed: " + e.Msg }

// RateLimitError means the API quota is exhausted or a secondary limit kicked in.
type RateLimitError struct {
	// ResetAt is when requests may resume.
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("GitHub API rate limit exceeded, resets at %s", e.ResetAt.Local().Format(time.Kitchen))
}

// NetworkError wraps a transport-level failure: no response was received,
// or its body was cut off.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "unable to connect, check your internet connection: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is a non-2xx response that is not otherwise classified.
type APIError struct {
	StatusCode int
	// Body is the decoded JSON body, or the raw text when it is not JSON.
	Body any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("GitHub API error: %d", e.StatusCode)
}

// NotFoundError means the resource is absent or is not a task item.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return "not found: " + e.Msg }

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

// IsRateLimit reports whether err is a RateLimitError.
func IsRateLimit(err error) bool {
	var e *RateLimitError
	return errors.As(err, &e)
}

// IsNetwork reports whether err is a NetworkError.
func IsNetwork(err error) bool {
	var e *NetworkError
	return errors.As(err, &e)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}
