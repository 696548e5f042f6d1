package cli

import "fmt"

// ExitError represents a command failure with a specific exit code.
//
// Cobra RunE functions return NewExitError(code) instead of calling os.Exit
// directly, so tests can assert on exit codes without terminating the test
// process. [RunWithConfig] extracts the code via [IsExitError]; [Execute]
// performs the actual os.Exit.
type ExitError struct {
	// Code is the exit code to return to the shell.
	Code int
}

// Error implements the error interface in the same "exit status N" format
// os/exec uses for subprocess failures.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewExitError creates an [ExitError] with the given exit code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// IsExitError reports whether err is an [ExitError] and extracts its code.
// Returns (0, false) for nil or other error types.
func IsExitError(err error) (int, bool) {
	if exitErr, ok := err.(*ExitError); ok {
		return exitErr.Code, true
	}
	return 0, false
}
