package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the boundary can pick a user-facing message.
// The taxonomy is internal: callers outside this package branch on the final
// display string and the state transition, never on kinds.
type Kind int

const (
	// Unknown covers everything the taxonomy does not name.
	Unknown Kind = iota
	// Configuration means the feature is misconfigured; shown as a standing
	// notice, not per action.
	Configuration
	// WalletRejected means the user declined a signature or transaction.
	WalletRejected
	// SessionMismatch means the signing address differs from the expected
	// authenticated address. Always fatal to the attempt, never persisted.
	SessionMismatch
	// BackendUnavailable is a generic ledger RPC failure.
	BackendUnavailable
	// SchemaMissing means the ledger schema has not been migrated yet.
	SchemaMissing
	// VerificationTransient is a single failed poll attempt; the next timer
	// tick retries it silently.
	VerificationTransient
)

// Error carries a kind, the operation that failed, and the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a kind and operation name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf is New with a formatted cause and no wrapped error.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind from an error chain, Unknown if absent.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is lets errors.Is match two fault errors by kind.
func (e *Error) Is(target error) bool {
	var fe *Error
	if errors.As(target, &fe) {
		return fe.Kind == e.Kind
	}
	return false
}

// UserMessage maps an error to the single string shown to the user. All
// internal distinctions collapse here.
func UserMessage(err error) string {
	switch KindOf(err) {
	case Configuration:
		return "This feature is not configured correctly. Please contact support."
	case WalletRejected:
		return "Request cancelled in wallet."
	case SessionMismatch:
		return "Connected wallet does not match the signed-in account. Reconnect and try again."
	case SchemaMissing:
		return "The rewards backend is still being set up. Please try again later."
	case BackendUnavailable:
		return "Could not reach the rewards backend. Please try again."
	case VerificationTransient:
		return "Still waiting for on-chain confirmation."
	default:
		return "Something went wrong. Please try again."
	}
}
