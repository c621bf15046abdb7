package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// ErrNotConnected is returned when an account has no usable calendar
// connection for the requested operation.
var ErrNotConnected = errors.New("account has no connected calendar")

// TransientError marks a vendor failure worth retrying, such as rate limiting
// or a server-side outage.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("calendar %s: transient failure (status %d): %v", e.Op, e.StatusCode, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// FatalError marks a vendor failure that retrying cannot fix, such as an
// invalid request or a revoked grant.
type FatalError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("calendar %s: fatal failure (status %d): %v", e.Op, e.StatusCode, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err carries a retryable vendor failure.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return true
	}
	return false
}

func classify(op string, code int, err error) error {
	if retryableStatus(code) {
		return &TransientError{Op: op, StatusCode: code, Err: err}
	}
	return &FatalError{Op: op, StatusCode: code, Err: err}
}

// wrapVendorError normalizes Google API and OAuth transport failures into the
// transient/fatal split. Network-level errors without an HTTP status are
// treated as transient; context cancellation passes through untouched.
func wrapVendorError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return classify(op, apiErr.Code, err)
	}
	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) {
		code := 0
		if tokenErr.Response != nil {
			code = tokenErr.Response.StatusCode
		}
		return classify(op, code, err)
	}
	return &TransientError{Op: op, Err: err}
}
