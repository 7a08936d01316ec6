package engine

import (
	"errors"
	"fmt"

	"github.com/bitwebs/bitstream/internal/model"
)

// Error represents a failure detected by the engine or one of its consumers.
//
// Errors carry structured fields for diagnostics:
//   - Code: the error category
//   - Writer/Seq: the offending entry, when one exists
//   - Err: the underlying cause, exposed through Unwrap
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Writer identifies the affected writer log, if any.
	Writer model.WriterID

	// Seq is the affected entry position. Negative when only the writer
	// is relevant.
	Seq int64

	// Err is the wrapped cause.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeStaleClock indicates an append whose clock does not match the log head.
	ErrCodeStaleClock ErrorCode = "STALE_CLOCK"

	// ErrCodeUnsupportedOperation indicates an operation other than put during apply.
	ErrCodeUnsupportedOperation ErrorCode = "UNSUPPORTED_OPERATION"

	// ErrCodeDecode indicates a payload that does not parse into an operation.
	ErrCodeDecode ErrorCode = "DECODE_ERROR"

	// ErrCodeStorage indicates a log, output or index I/O failure.
	ErrCodeStorage ErrorCode = "STORAGE_ERROR"

	// ErrCodeReentrancy indicates a concurrent invocation against the same target.
	ErrCodeReentrancy ErrorCode = "REENTRANCY"

	// ErrCodeReservedKey indicates a user key inside the conflict marker namespace.
	ErrCodeReservedKey ErrorCode = "RESERVED_KEY"

	// ErrCodeUnknownWriter indicates a writer the engine was not constructed with.
	ErrCodeUnknownWriter ErrorCode = "UNKNOWN_WRITER"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Writer != "" && e.Seq >= 0:
		msg = fmt.Sprintf("%s (entry=%s:%d)", msg, e.Writer, e.Seq)
	case e.Writer != "":
		msg = fmt.Sprintf("%s (writer=%s)", msg, e.Writer)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewStaleClockError creates an Error for an append with an outdated clock.
func NewStaleClockError(writer model.WriterID, length int64, err error) *Error {
	return &Error{
		Code:    ErrCodeStaleClock,
		Message: fmt.Sprintf("clock does not match head of log with %d entries", length),
		Writer:  writer,
		Seq:     length,
		Err:     err,
	}
}

// NewUnsupportedOperationError creates an Error for a skipped operation.
func NewUnsupportedOperationError(ref model.EntryRef, op string) *Error {
	return &Error{
		Code:    ErrCodeUnsupportedOperation,
		Message: fmt.Sprintf("unsupported operation %q", op),
		Writer:  ref.Writer,
		Seq:     ref.Seq,
	}
}

// NewDecodeError creates an Error for an undecodable payload.
func NewDecodeError(ref model.EntryRef, err error) *Error {
	return &Error{
		Code:    ErrCodeDecode,
		Message: "payload is not an operation envelope",
		Writer:  ref.Writer,
		Seq:     ref.Seq,
		Err:     err,
	}
}

// NewStorageError wraps an I/O failure.
func NewStorageError(op string, err error) *Error {
	return &Error{
		Code:    ErrCodeStorage,
		Message: op,
		Err:     err,
	}
}

// NewReentrancyError creates an Error for a concurrent invocation.
func NewReentrancyError(target string) *Error {
	return &Error{
		Code:    ErrCodeReentrancy,
		Message: fmt.Sprintf("%s is already running", target),
	}
}

// NewReservedKeyError creates an Error for a key in the reserved namespace.
func NewReservedKeyError(key []byte) *Error {
	return &Error{
		Code:    ErrCodeReservedKey,
		Message: fmt.Sprintf("key %q is reserved", key),
	}
}

// NewUnknownWriterError creates an Error for an unregistered writer.
func NewUnknownWriterError(writer model.WriterID) *Error {
	return &Error{
		Code:    ErrCodeUnknownWriter,
		Message: "writer is not part of this engine",
		Writer:  writer,
		Seq:     -1,
	}
}

// Code returns the error code of err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func Code(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsStaleClock returns true if err is a stale clock rejection.
func IsStaleClock(err error) bool {
	return Code(err) == ErrCodeStaleClock
}

// IsUnsupportedOperation returns true if err reports a skipped operation.
func IsUnsupportedOperation(err error) bool {
	return Code(err) == ErrCodeUnsupportedOperation
}

// IsDecodeError returns true if err is a decode failure.
func IsDecodeError(err error) bool {
	return Code(err) == ErrCodeDecode
}

// IsStorageError returns true if err is a storage failure.
func IsStorageError(err error) bool {
	return Code(err) == ErrCodeStorage
}

// IsReentrancy returns true if err is a reentrancy rejection.
func IsReentrancy(err error) bool {
	return Code(err) == ErrCodeReentrancy
}

// IsReservedKey returns true if err is a reserved key rejection.
func IsReservedKey(err error) bool {
	return Code(err) == ErrCodeReservedKey
}

// IsUnknownWriter returns true if err names a writer the engine does not have.
func IsUnknownWriter(err error) bool {
	return Code(err) == ErrCodeUnknownWriter
}
