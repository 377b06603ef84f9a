// Package errclass defines the stable, machine-readable error classes
// surfaced by the enforcement scheduler.
package errclass

import "fmt"

// NudgeError is a stable, machine-readable error class.
type NudgeError struct {
	Code    string
	Message string
}

func (e *NudgeError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *NudgeError) Is(target error) bool {
	t, ok := target.(*NudgeError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new NudgeError with the same Code but a specific message.
func (e *NudgeError) WithMessage(msg string) *NudgeError {
	return &NudgeError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new NudgeError with a formatted message.
func (e *NudgeError) WithMessagef(format string, args ...any) *NudgeError {
	return &NudgeError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	// ErrInvalidDeferral means the enforcement boundary refused a deferral.
	ErrInvalidDeferral = &NudgeError{Code: "E_INVALID_DEFERRAL"}
	// ErrPersistenceFailure means a ledger write could not be committed.
	ErrPersistenceFailure = &NudgeError{Code: "E_PERSISTENCE_FAILURE"}
	// ErrUpdateLaunchFailed means the external updater reported failure.
	ErrUpdateLaunchFailed = &NudgeError{Code: "E_UPDATE_LAUNCH_FAILED"}
	// ErrConfigurationInvalid is detected at startup, never at evaluation time.
	ErrConfigurationInvalid = &NudgeError{Code: "E_CONFIGURATION_INVALID"}
	// ErrLedgerCorrupt means the persisted ledger could not be decoded.
	ErrLedgerCorrupt = &NudgeError{Code: "E_LEDGER_CORRUPT"}
	// ErrAuditChainBroken means an audit record does not match the chain.
	ErrAuditChainBroken = &NudgeError{Code: "E_AUDIT_CHAIN_BROKEN"}
)
