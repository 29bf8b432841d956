package classify

import "errors"

var (
	ErrKilled           = &Error{Reason: Killed}
	ErrNoDevice         = &Error{Reason: NoDevice}
	ErrMultipleDevices  = &Error{Reason: MultipleDevices}
	ErrUnauthorized     = &Error{Reason: Unauthorized}
	ErrDeviceOffline    = &Error{Reason: DeviceOffline}
	ErrBootloaderLocked = &Error{Reason: BootloaderLocked}
	ErrEnableUnlocking  = &Error{Reason: EnableUnlocking}
	ErrLowBattery       = &Error{Reason: LowBattery}
	ErrFailedToBoot     = &Error{Reason: FailedToBoot}
	ErrUnexpectedOutput = &Error{Reason: UnexpectedOutput}
)

// Error is a classified invocation failure.
//
// Its message is only the label (or the structured fallback text). Raw
// process detail is kept in the fields for logging and never surfaces
// through Error().
type Error struct {
	Reason   Reason
	Message  string
	Tool     string
	ExitCode int
	Signal   string
	Stdout   string
	Stderr   string
	Cause    error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error carrying the same non-empty label.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Reason != "" && e.Reason == t.Reason
}

// Unexpected builds an unexpected-output error for output that failed to parse.
func Unexpected(tool string, output string) *Error {
	return &Error{
		Reason:  UnexpectedOutput,
		Message: string(UnexpectedOutput),
		Tool:    tool,
		Stdout:  output,
	}
}

// ReasonOf returns the label of err when it wraps a classified error.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
