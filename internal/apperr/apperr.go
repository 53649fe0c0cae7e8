// Package apperr classifies domain failures so the HTTP layer can map them to
// status codes without knowing which component produced them.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the error class. It decides the status code and whether the caller
// may retry.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthorization
	KindNotFound
	KindConflict
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindDependency:
		return "dependency"
	default:
		return "internal"
	}
}

// Codes shared across packages.
const (
	CodeMissingRequiredField = "missing_required_field"
	CodeUnknownField         = "unknown_field"
	CodeInvalidOption        = "invalid_option"
	CodeFieldTooLong         = "field_too_long"
	CodeInvalidFileReference = "invalid_file_reference"
	CodeFileRejected         = "file_rejected"
	CodeInvalidFieldValue    = "invalid_field_value"
	CodeDuplicateFieldName   = "duplicate_field_name"
	CodeInvalidConstraint    = "invalid_constraint"
	CodeUnsupportedFieldType = "unsupported_field_type"
	CodeInvalidInput         = "invalid_input"

	CodePendingApproval    = "pending_approval"
	CodeRejected           = "rejected"
	CodeNotOwner           = "not_owner"
	CodeUnauthorized       = "unauthorized"
	CodeInvalidCredentials = "invalid_credentials"

	CodeNotFound          = "not_found"
	CodeEmailTaken        = "email_taken"
	CodeInvalidTransition = "invalid_transition"
	CodeFieldLocked       = "field_locked"
	CodeUserHasForms      = "user_has_forms"
	CodeDuplicate         = "duplicate"

	CodeUploadFailed     = "upload_failed"
	CodeStoreUnavailable = "store_unavailable"
	CodeInternal         = "internal"
)

// Error is a classified failure. Details carries machine readable context
// such as the offending field name.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and code, so callers can compare against
// a template built with New.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// With returns a copy carrying an extra detail entry.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(kind Kind, code string, err error, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}

func Validation(code, msg string) *Error { return New(KindValidation, code, msg) }

func Conflict(code, msg string) *Error { return New(KindConflict, code, msg) }

func Forbidden(code, msg string) *Error { return New(KindAuthorization, code, msg) }

func NotFound(what string) *Error {
	return New(KindNotFound, CodeNotFound, what+" not found").With("resource", what)
}

// StoreUnavailable wraps a persistence failure as retryable.
func StoreUnavailable(err error) *Error {
	return Wrap(KindDependency, CodeStoreUnavailable, err, "store unavailable")
}

// UploadFailed wraps a blob store failure as retryable.
func UploadFailed(err error) *Error {
	return Wrap(KindDependency, CodeUploadFailed, err, "upload failed")
}

// As returns the classified error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the class of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the code of err, or CodeInternal.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// Retryable reports whether the caller may retry with backoff.
func Retryable(err error) bool { return KindOf(err) == KindDependency }
