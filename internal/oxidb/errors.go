package oxidb

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBroken is returned by a client whose stream was left mid-frame.
var ErrBroken = errors.New("oxidb: connection broken")

// Error is returned when the OxiDB server returns an error response.
type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("oxidb: %s", e.Msg)
}

// TransactionConflictError is returned on OCC version conflict during commit.
type TransactionConflictError struct {
	Msg string
}

func (e *TransactionConflictError) Error() string {
	return fmt.Sprintf("oxidb: transaction conflict: %s", e.Msg)
}

// IsNotFound reports a server-side "not found" answer, as returned for
// missing objects and buckets.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && strings.Contains(strings.ToLower(e.Msg), "not found")
}

// IsDuplicate reports a unique index violation.
func IsDuplicate(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	msg := strings.ToLower(e.Msg)
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

// IsAlreadyExists reports that a collection, bucket or index exists.
func IsAlreadyExists(err error) bool {
	var e *Error
	return errors.As(err, &e) && strings.Contains(strings.ToLower(e.Msg), "already exists")
}
