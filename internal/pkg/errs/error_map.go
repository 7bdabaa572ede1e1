/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to
standardize error handling and the daemon's HTTP responses.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: Transport and Connection Errors
	ErrNotConnected:    {Code: ErrNotConnected, Message: "Not connected. Reconnecting...", Status: http.StatusServiceUnavailable},
	ErrAuthFailure:     {Code: ErrAuthFailure, Message: "Sign-in expired. Please sign in again.", Status: http.StatusUnauthorized},
	ErrDecodeFailure:   {Code: ErrDecodeFailure, Message: "Received an unreadable message."},
	ErrSubscribeFailed: {Code: ErrSubscribeFailed, Message: "Could not subscribe to channel %q."},

	// 2xxx: Collaborator (HTTP) Errors
	ErrCollaborator:       {Code: ErrCollaborator, Message: "A background request failed. Please try again.", Status: http.StatusBadGateway},
	ErrCollaboratorStatus: {Code: ErrCollaboratorStatus, Message: "Service answered with an error (%s).", Status: http.StatusBadGateway},

	// 3xxx: Identity and Authorization Errors
	ErrInvalidToken:  {Code: ErrInvalidToken, Message: "Invalid credentials.", Status: http.StatusUnauthorized},
	ErrRoleForbidden: {Code: ErrRoleForbidden, Message: "You are not allowed to do that.", Status: http.StatusForbidden},

	// 4xxx: Request and Throttling Errors
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please slow down.", Status: http.StatusTooManyRequests},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
