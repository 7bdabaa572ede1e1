/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific transport, collaborator, and identity errors
both internally and toward the embedding application.
*/
package errs

// 1xxx: Transport and Connection Errors
const (
	// ErrNotConnected indicates a send or subscribe was attempted while the
	// connection is down. Recoverable: the caller re-issues after reconnect.
	ErrNotConnected = 1001

	// ErrAuthFailure indicates the broker rejected the bearer credential at
	// connect time. Fatal for that attempt; a fresh credential is required.
	ErrAuthFailure = 1002

	// ErrDecodeFailure indicates an inbound wire frame could not be decoded.
	// Isolated per frame: the frame is logged and dropped.
	ErrDecodeFailure = 1003

	// ErrSubscribeFailed indicates a topic subscription could not be issued
	// on an otherwise live connection.
	ErrSubscribeFailed = 1004
)

// 2xxx: Collaborator (HTTP) Errors
const (
	// ErrCollaborator indicates an HTTP call to an external service failed
	// outright (network error, timeout, malformed response).
	ErrCollaborator = 2001

	// ErrCollaboratorStatus indicates the collaborator answered with a
	// non-success status or a non-zero business code.
	ErrCollaboratorStatus = 2002
)

// 3xxx: Identity and Authorization Errors
const (
	// ErrInvalidToken indicates the bearer credential could not be parsed
	// into an identity.
	ErrInvalidToken = 3001

	// ErrRoleForbidden indicates the current identity's role does not permit
	// the requested operation.
	ErrRoleForbidden = 3002
)

// 4xxx: Request and Throttling Errors
const (
	// ErrRateLimitExceeded indicates a client exceeded the request rate limit
	// of the diagnostic HTTP surface.
	ErrRateLimitExceeded = 4001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general internal error.
	ErrUnknown = 5000
)
