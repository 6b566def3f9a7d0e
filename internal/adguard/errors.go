package adguard

import "fmt"

// AuthError indicates the server rejected our credentials (HTTP 401/403).
// It is never retried automatically; the caller must obtain new credentials.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// ConnError covers every non-auth failure: transport errors, non-2xx
// responses, and undecodable bodies.
type ConnError struct {
	Message string
	Err     error
}

func (e *ConnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

func newConnError(message string, err error) *ConnError {
	return &ConnError{Message: message, Err: err}
}
