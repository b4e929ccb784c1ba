package bytecode

import (
	"errors"
	"fmt"
)

// FormatError reports a problem with a compiled program itself: a malformed
// binary, or a build/link-time contract violation. It is the "this program
// is invalid" category, distinct from per-evaluation failures (vm.EvalError).
type FormatError struct {
	// Code identifies the error category.
	Code FormatErrorCode

	// Message is a human-readable description.
	Message string

	// Offset is the byte offset where decoding failed, or -1 when the
	// error is not tied to a buffer position.
	Offset int
}

// FormatErrorCode categorizes format and link errors.
type FormatErrorCode string

const (
	// ErrCodeBadMagic indicates the buffer does not start with the
	// waypost magic number.
	ErrCodeBadMagic FormatErrorCode = "BAD_MAGIC"

	// ErrCodeBadVersion indicates an unsupported format version.
	ErrCodeBadVersion FormatErrorCode = "BAD_VERSION"

	// ErrCodeTruncated indicates the buffer is shorter than its declared
	// contents require.
	ErrCodeTruncated FormatErrorCode = "TRUNCATED"

	// ErrCodeBadOffsets indicates section offsets that are non-monotonic
	// or outside the buffer.
	ErrCodeBadOffsets FormatErrorCode = "BAD_OFFSETS"

	// ErrCodeBadConstant indicates an unknown constant type tag or
	// nesting beyond the decode limit.
	ErrCodeBadConstant FormatErrorCode = "BAD_CONSTANT"

	// ErrCodeDuplicateRegister indicates two registers allocated under
	// the same name.
	ErrCodeDuplicateRegister FormatErrorCode = "DUPLICATE_REGISTER"

	// ErrCodeRegisterOverflow indicates more than MaxRegisters registers.
	ErrCodeRegisterOverflow FormatErrorCode = "REGISTER_OVERFLOW"

	// ErrCodeUnknownRegister indicates a lookup of a name never allocated.
	ErrCodeUnknownRegister FormatErrorCode = "UNKNOWN_REGISTER"

	// ErrCodeUnresolvedLabel indicates a jump to a label never marked.
	ErrCodeUnresolvedLabel FormatErrorCode = "UNRESOLVED_LABEL"

	// ErrCodeUnknownFunction indicates a function-table entry that no
	// registered builtin or extension satisfies.
	ErrCodeUnknownFunction FormatErrorCode = "UNKNOWN_FUNCTION"
)

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s: %s (offset %d)", e.Code, e.Message, e.Offset)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewFormatError creates a FormatError not tied to a buffer position.
func NewFormatError(code FormatErrorCode, format string, args ...any) *FormatError {
	return &FormatError{Code: code, Message: fmt.Sprintf(format, args...), Offset: -1}
}

func formatErrorAt(code FormatErrorCode, offset int, format string, args ...any) *FormatError {
	return &FormatError{Code: code, Message: fmt.Sprintf(format, args...), Offset: offset}
}

// IsFormatError reports whether err is (or wraps) a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}
