package provisioning

import (
	"errors"
	"fmt"
)

// Stable machine-readable error codes surfaced to callers. Internal
// detail stays in logs and the audit record's error block.
const (
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeDuplicateCredential = "DUPLICATE_CREDENTIAL"
	CodeNotFound            = "NOT_FOUND"
	CodePersistenceError    = "PERSISTENCE_ERROR"
	CodeCipherFailure       = "CIPHER_FAILURE"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrDuplicateCredential = errors.New("credential already exists for owner, platform and username")
	ErrNotFound            = errors.New("credential not found")
)

// Error pairs a stable code with a caller-safe message. The wrapped
// cause is for logs only and never serialized.
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func validationError(message string) *Error {
	return &Error{Code: CodeValidationFailed, Message: message, cause: ErrValidation}
}

func duplicateError() *Error {
	return &Error{
		Code:    CodeDuplicateCredential,
		Message: "an account with this username already exists on this platform",
		cause:   ErrDuplicateCredential,
	}
}

func notFoundError() *Error {
	return &Error{Code: CodeNotFound, Message: "account not found", cause: ErrNotFound}
}

func persistenceError(err error) *Error {
	return &Error{
		Code:    CodePersistenceError,
		Message: "the account could not be saved",
		cause:   err,
	}
}

func cipherError(err error) *Error {
	return &Error{
		Code:    CodeCipherFailure,
		Message: "credential encryption failed",
		cause:   err,
	}
}

// CodeOf extracts the stable code from any error, defaulting to
// PERSISTENCE_ERROR for unclassified failures.
func CodeOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodePersistenceError
}

// MessageOf extracts the caller-safe message from any error.
func MessageOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return "internal error"
}
