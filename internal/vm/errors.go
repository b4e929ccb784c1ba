package vm

import (
	"errors"
	"fmt"
)

// EvalError reports a failure of one resolution call: a missing required
// parameter, a type mismatch, malformed bytecode reached at runtime, or an
// explicit error result. It is terminal for that call; the VM never retries.
type EvalError struct {
	// Code identifies the error category.
	Code EvalErrorCode

	// Message is a human-readable description.
	Message string

	// Address is the failing instruction's byte offset, -1 when the
	// error is not tied to an instruction.
	Address int

	// Register names the offending register for parameter errors.
	Register string
}

// EvalErrorCode categorizes evaluation errors.
type EvalErrorCode string

const (
	// ErrCodeMissingParameter indicates a required register with no value
	// from any source.
	ErrCodeMissingParameter EvalErrorCode = "MISSING_PARAMETER"

	// ErrCodeTypeMismatch indicates an opcode applied to a value of the
	// wrong kind.
	ErrCodeTypeMismatch EvalErrorCode = "TYPE_MISMATCH"

	// ErrCodeUnknownOpcode indicates an undefined opcode byte.
	ErrCodeUnknownOpcode EvalErrorCode = "UNKNOWN_OPCODE"

	// ErrCodeMalformedBytecode indicates a body that ran out of
	// instructions without a return, or stack/operand underruns.
	ErrCodeMalformedBytecode EvalErrorCode = "MALFORMED_BYTECODE"

	// ErrCodeErrorResult indicates an explicit RETURN_ERROR.
	ErrCodeErrorResult EvalErrorCode = "ERROR_RESULT"

	// ErrCodeBadURI indicates RETURN_ENDPOINT popped an unparsable URL.
	ErrCodeBadURI EvalErrorCode = "BAD_URI"

	// ErrCodeNoMatch indicates BDD traversal ended at the FALSE terminal.
	ErrCodeNoMatch EvalErrorCode = "NO_MATCH"

	// ErrCodeFunctionFailed indicates a builtin or extension function
	// returned an error.
	ErrCodeFunctionFailed EvalErrorCode = "FUNCTION_FAILED"
)

// Error implements the error interface.
func (e *EvalError) Error() string {
	switch {
	case e.Register != "":
		return fmt.Sprintf("%s: %s (register %s)", e.Code, e.Message, e.Register)
	case e.Address >= 0:
		return fmt.Sprintf("%s: %s at address %d", e.Code, e.Message, e.Address)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// NewEvalError creates an EvalError not tied to an instruction address.
func NewEvalError(code EvalErrorCode, format string, args ...any) *EvalError {
	return &EvalError{Code: code, Message: fmt.Sprintf(format, args...), Address: -1}
}

func evalErrorAt(code EvalErrorCode, addr int, format string, args ...any) *EvalError {
	return &EvalError{Code: code, Message: fmt.Sprintf(format, args...), Address: addr}
}

// IsEvalError reports whether err is (or wraps) an EvalError.
func IsEvalError(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee)
}

// IsMissingParameter reports whether err is a missing-required-parameter
// error. Uses errors.As to handle wrapped errors.
func IsMissingParameter(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee) && ee.Code == ErrCodeMissingParameter
}

// IsNoMatch reports whether err is a no-rules-matched error.
func IsNoMatch(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee) && ee.Code == ErrCodeNoMatch
}
