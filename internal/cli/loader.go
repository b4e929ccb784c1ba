package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/waypost/internal/bytecode"
)

// ErrCodeGeneric is the fallback error code for failures without a typed
// code of their own.
const ErrCodeGeneric = "GENERIC"

// LoadProgram reads and decodes a compiled program file. Read failures are
// command errors (exit 2); decode failures are program failures (exit 1)
// carrying the format error's code.
func LoadProgram(path string) (*bytecode.Program, *ExitError) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read program", err)
	}
	prog, err := bytecode.Decode(raw)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "invalid program", err)
	}
	return prog, nil
}

// errorCode extracts a typed code from an error for CLI output.
func errorCode(err error) string {
	var formatErr *bytecode.FormatError
	if errors.As(err, &formatErr) {
		return string(formatErr.Code)
	}
	return ErrCodeGeneric
}

// reportError renders err through the formatter and returns the matching
// ExitError for the command's exit code.
func reportError(formatter *OutputFormatter, exitErr *ExitError) error {
	code := ErrCodeGeneric
	message := exitErr.Message
	if exitErr.Err != nil {
		code = errorCode(exitErr.Err)
		message = fmt.Sprintf("%s: %v", exitErr.Message, exitErr.Err)
	}
	_ = formatter.Error(code, message)
	return exitErr
}
