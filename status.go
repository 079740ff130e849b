// SPDX-License-Identifier: Apache-2.0

package negotiate

import "errors"

// StatusCode is the result of one authentication or message protection
// operation. The two control codes StatusContinueNeeded and StatusCompleted
// are not errors; every other value is a terminal failure that carries a
// specific reason for caller diagnostics. Failure reasons are never
// coalesced into a single generic error.
type StatusCode int

const (
	// StatusContinueNeeded indicates that more token exchanges with the
	// peer are required before the context is established.
	StatusContinueNeeded StatusCode = iota

	// StatusCompleted indicates that the operation succeeded and, for
	// Step, that the security context is fully established.
	StatusCompleted

	// StatusGenericFailure is the catch-all for engine errors with no
	// closer match in the taxonomy.
	StatusGenericFailure

	// StatusInvalidToken indicates a malformed or unparseable token.
	StatusInvalidToken

	// StatusInvalidCredentials indicates that the supplied credentials
	// were rejected by the peer or the engine.
	StatusInvalidCredentials

	// StatusUnknownCredentials indicates that no credentials were
	// available for the requested identity.
	StatusUnknownCredentials

	// StatusTargetUnknown indicates that the target service name was not
	// recognized.
	StatusTargetUnknown

	// StatusContextExpired indicates that the security context has passed
	// its validity period.
	StatusContextExpired

	// StatusQopNotSupported indicates that the required protection level
	// could not be negotiated.
	StatusQopNotSupported

	// StatusUnsupported indicates that the requested operation or
	// mechanism is not supported by the engine.
	StatusUnsupported

	// StatusMessageModified indicates that the integrity check of a
	// protected message failed.
	StatusMessageModified

	// StatusMessageExpired indicates that a protected message fell
	// outside the mechanism's replay or ordering window.
	StatusMessageExpired

	// StatusInvalidOperation indicates misuse of the API, such as calling
	// Step after the session reached a terminal phase.
	StatusInvalidOperation

	// StatusNotSupported indicates that message protection was requested
	// but never negotiated.
	StatusNotSupported
)

// Error values corresponding to the failure status codes. Engines report
// step failures by returning one of these sentinels, possibly wrapped with
// mechanism detail; the Authenticator maps them back to status codes.
var (
	ErrGenericFailure     = errors.New("unspecified authentication failure")
	ErrInvalidToken       = errors.New("an invalid or malformed token was supplied")
	ErrInvalidCredentials = errors.New("the supplied credentials were rejected")
	ErrUnknownCredentials = errors.New("no credentials were available for the identity")
	ErrTargetUnknown      = errors.New("the target service name was not recognized")
	ErrContextExpired     = errors.New("the security context has expired")
	ErrQopNotSupported    = errors.New("the required protection level could not be negotiated")
	ErrUnsupported        = errors.New("the operation or mechanism is not supported")
	ErrMessageModified    = errors.New("the message integrity check failed")
	ErrMessageExpired     = errors.New("the message is outside the replay or ordering window")
	ErrInvalidOperation   = errors.New("the operation is not valid in the current state")
	ErrNotSupported       = errors.New("message protection was not negotiated")
)

var statusErrors = map[StatusCode]error{
	StatusGenericFailure:     ErrGenericFailure,
	StatusInvalidToken:       ErrInvalidToken,
	StatusInvalidCredentials: ErrInvalidCredentials,
	StatusUnknownCredentials: ErrUnknownCredentials,
	StatusTargetUnknown:      ErrTargetUnknown,
	StatusContextExpired:     ErrContextExpired,
	StatusQopNotSupported:    ErrQopNotSupported,
	StatusUnsupported:        ErrUnsupported,
	StatusMessageModified:    ErrMessageModified,
	StatusMessageExpired:     ErrMessageExpired,
	StatusInvalidOperation:   ErrInvalidOperation,
	StatusNotSupported:       ErrNotSupported,
}

// IsError reports whether c represents a failure. The control codes
// StatusContinueNeeded and StatusCompleted are not errors.
func (c StatusCode) IsError() bool {
	return c != StatusContinueNeeded && c != StatusCompleted
}

// IsTerminal reports whether c ends the exchange: StatusCompleted and every
// failure code are terminal, StatusContinueNeeded is not.
func (c StatusCode) IsTerminal() bool {
	return c != StatusContinueNeeded
}

// Err returns the sentinel error corresponding to a failure code, or nil
// for the two control codes. The returned errors are stable values suitable
// for use with errors.Is.
func (c StatusCode) Err() error {
	if err, ok := statusErrors[c]; ok {
		return err
	}
	return nil
}

// statusFromError maps an engine error onto the closest status code,
// falling back to StatusGenericFailure for errors outside the taxonomy.
func statusFromError(err error) StatusCode {
	for code, sentinel := range statusErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return StatusGenericFailure
}

func (c StatusCode) String() string {
	switch c {
	case StatusContinueNeeded:
		return "ContinueNeeded"
	case StatusCompleted:
		return "Completed"
	case StatusGenericFailure:
		return "GenericFailure"
	case StatusInvalidToken:
		return "InvalidToken"
	case StatusInvalidCredentials:
		return "InvalidCredentials"
	case StatusUnknownCredentials:
		return "UnknownCredentials"
	case StatusTargetUnknown:
		return "TargetUnknown"
	case StatusContextExpired:
		return "ContextExpired"
	case StatusQopNotSupported:
		return "QopNotSupported"
	case StatusUnsupported:
		return "Unsupported"
	case StatusMessageModified:
		return "MessageModified"
	case StatusMessageExpired:
		return "MessageExpired"
	case StatusInvalidOperation:
		return "InvalidOperation"
	case StatusNotSupported:
		return "NotSupported"
	}

	return "Unknown"
}
