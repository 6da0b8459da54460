package interfaces

import (
	"errors"
	"fmt"
	"net"
)

// ErrUserNotFound is returned by user stores for unknown usernames
var ErrUserNotFound = errors.New("user not found")

// ValidationError reports input outside the accepted shape or range
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown option contract id
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("option contract %d not found", e.ID)
}

// RangeError reports a listing window that does not fit the stored records
type RangeError struct {
	Offset int
	Limit  int
	Count  int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("requested %d options from offset %d exceeds available options (%d)", e.Limit, e.Offset, e.Count)
}

// AuthError reports a missing, invalid or disabled caller identity
type AuthError struct {
	Reason   string
	Inactive bool
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Reason
}

// UpstreamError carries a non-success response from the reference data provider
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream API error %d: %s", e.Status, e.Body)
}

// TransportError wraps a network failure talking to the provider
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream transport error: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Timeout reports whether the failure was the request deadline expiring
func (e *TransportError) Timeout() bool {
	var netErr net.Error
	return errors.As(e.Cause, &netErr) && netErr.Timeout()
}
