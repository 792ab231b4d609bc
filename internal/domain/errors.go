package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for authentication and message pipeline failures. Callers wrap them
// with context and match them with errors.Is.
var (
	// ErrExternalTokenInvalid indicates the external identity provider rejected
	// the token, could not be reached in time, or issued it for another audience.
	ErrExternalTokenInvalid = errors.New("external identity token is invalid")

	// ErrCredentialMissing indicates no session credential was presented.
	ErrCredentialMissing = errors.New("session credential is missing")

	// ErrCredentialInvalid indicates the session credential is malformed or its
	// signature does not verify.
	ErrCredentialInvalid = errors.New("session credential is invalid")

	// ErrCredentialExpired indicates the session credential is past its expiry.
	ErrCredentialExpired = errors.New("session credential is expired")

	// ErrPersistenceUnavailable indicates the message ledger could not durably
	// store a message.
	ErrPersistenceUnavailable = errors.New("message persistence is unavailable")

	// ErrMalformedInboundMessage indicates an Active connection submitted empty
	// or otherwise unusable content.
	ErrMalformedInboundMessage = errors.New("inbound message is malformed")

	// ErrConnectionClosed is returned when a disconnected connection submits.
	ErrConnectionClosed = errors.New("connection is closed")

	// ErrHubStopped is returned when the hub dispatcher is no longer running.
	ErrHubStopped = errors.New("hub is stopped")
)

// Wire codes reported to clients in HTTP bodies and websocket error events.
const (
	CodeExternalTokenInvalid   = "external_token_invalid"
	CodeCredentialMissing      = "credential_missing"
	CodeCredentialInvalid      = "credential_invalid"
	CodeCredentialExpired      = "credential_expired"
	CodePersistenceUnavailable = "persistence_unavailable"
	CodeMalformedMessage       = "malformed_message"
	CodeConnectionClosed       = "connection_closed"
	CodeRateLimited            = "rate_limited"
	CodeInternal               = "internal_error"
)

// ErrorCode maps an error to its stable wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrExternalTokenInvalid):
		return CodeExternalTokenInvalid
	case errors.Is(err, ErrCredentialMissing):
		return CodeCredentialMissing
	case errors.Is(err, ErrCredentialExpired):
		return CodeCredentialExpired
	case errors.Is(err, ErrCredentialInvalid):
		return CodeCredentialInvalid
	case errors.Is(err, ErrPersistenceUnavailable):
		return CodePersistenceUnavailable
	case errors.Is(err, ErrMalformedInboundMessage):
		return CodeMalformedMessage
	case errors.Is(err, ErrConnectionClosed), errors.Is(err, ErrHubStopped):
		return CodeConnectionClosed
	default:
		return CodeInternal
	}
}

// IsCredentialError reports whether err is one of the session credential
// verification failures.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrCredentialMissing) ||
		errors.Is(err, ErrCredentialInvalid) ||
		errors.Is(err, ErrCredentialExpired)
}
