package remote

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// AuthError reports an authentication or authorization failure.
//
// Auth errors are never retried inside the engine; the current sync cycle
// is aborted and the error surfaces to the caller.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError reports a transient provider or network failure. The engine
// counts these per record and continues with the rest of the batch.
type APIError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: remote API error (HTTP %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: remote API error: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// ParseError reports a remote payload whose shape could not be validated
// into a Snapshot.
type ParseError struct {
	ID     string
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("remote record %q: invalid %s: %s", e.ID, e.Field, e.Reason)
}

// IsAuth reports whether err is (or wraps) an authentication failure.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err is a provider 404/410, meaning the record
// no longer exists remotely.
func IsNotFound(err error) bool {
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return ge.Code == http.StatusNotFound || ge.Code == http.StatusGone
	}
	return false
}

// wrapErr maps a provider SDK error into the package taxonomy.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		switch ge.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &AuthError{Op: op, Err: err}
		default:
			return &APIError{Op: op, StatusCode: ge.Code, Err: err}
		}
	}
	return &APIError{Op: op, Err: err}
}
