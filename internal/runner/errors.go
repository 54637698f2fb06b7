package runner

import "fmt"

// StartupError reports a run that could not start: missing or malformed
// parameters, or a group that cannot work. No transport is open when it is
// returned.
type StartupError struct {
	Reason string
	Err    error
}

func (e *StartupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("startup: %s: %v", e.Reason, e.Err)
	}
	return "startup: " + e.Reason
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

func startupError(err error, format string, args ...any) *StartupError {
	return &StartupError{Reason: fmt.Sprintf(format, args...), Err: err}
}
