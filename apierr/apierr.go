// Package apierr maps internal error kinds to the {code, error, message}
// shape returned across the HTTP boundary.
package apierr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error kinds the node reports. Kind is not
// exhaustive by design: InternalInvariantViolation is the only fatal class.
type Kind string

const (
	KindDecodeError                Kind = "DecodeError"
	KindSignatureInvalid           Kind = "SignatureInvalid"
	KindDecryptionFailure          Kind = "DecryptionFailure"
	KindIdentityNotFound           Kind = "IdentityNotFound"
	KindPermissionDenied           Kind = "PermissionDenied"
	KindInvalidName                Kind = "InvalidName"
	KindAlreadyExists              Kind = "AlreadyExists"
	KindNotFound                   Kind = "NotFound"
	KindTimeout                    Kind = "Timeout"
	KindSubscriptionRejected       Kind = "SubscriptionRejected"
	KindBlobStoreFailure           Kind = "BlobStoreFailure"
	KindToolExecutionFailure       Kind = "ToolExecutionFailure"
	KindInternalInvariantViolation Kind = "InternalInvariantViolation"
)

// httpCode maps a Kind to its HTTP-style status code.
var httpCode = map[Kind]int{
	KindDecodeError:                400,
	KindSignatureInvalid:           400,
	KindDecryptionFailure:          400,
	KindIdentityNotFound:           404,
	KindPermissionDenied:           403,
	KindInvalidName:                400,
	KindAlreadyExists:              400,
	KindNotFound:                   404,
	KindTimeout:                    500,
	KindSubscriptionRejected:       400,
	KindBlobStoreFailure:           500,
	KindToolExecutionFailure:       500,
	KindInternalInvariantViolation: 500,
}

// Error is a structured error carrying a Kind, an HTTP-style code, and a
// human-readable message, matching the public API response shape
// {code, error, message}.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New constructs an Error for the given kind, looking up its HTTP code.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Code: httpCode[kind], Message: message}
}

// Wrap constructs an Error that carries an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Code: httpCode[kind], Message: message, Wrapped: cause}
}

// As extracts an *Error from err, if present.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}

// ErrBearerTokenMismatch is the sentinel used by the HTTP boundary
// bearer-token check; it always maps to 401, which the Kind table above
// does not otherwise produce.
var ErrBearerTokenMismatch = &Error{Kind: "BearerTokenMismatch", Code: 401, Message: "bearer token does not match configured API key"}
