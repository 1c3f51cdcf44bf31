// Package apierr defines the functional error registry returned to API clients.
//
// Every functional error carries a stable numeric code that mobile clients
// switch on, so codes must never be renumbered.
package apierr

import (
	"fmt"
	"net/http"
)

// Error is a functional failure with an HTTP status, a stable code, a human
// message and optional structured details.
type Error struct {
	Status  int
	Code    int
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Is matches any *Error carrying the same code, so copies produced by
// WithDetails or WithStatus still satisfy errors.Is against the registry value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithDetails returns a copy of e with the given details attached.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// WithStatus returns a copy of e rendered with a different HTTP status.
func (e *Error) WithStatus(status int) *Error {
	cp := *e
	cp.Status = status
	return &cp
}

// WithMessage returns a copy of e with a replaced message.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

// Body is the JSON body sent to the client.
func (e *Error) Body() map[string]any {
	body := map[string]any{
		"type":      "failure",
		"message":   e.Message,
		"errorCode": e.Code,
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	return body
}

func newError(status, code int, msg string) *Error {
	return &Error{Status: status, Code: code, Message: msg}
}

// Registry. Codes 1xx are authentication/accounts, 2xx store, 3xx content.
var (
	BadRequest           = newError(http.StatusBadRequest, 100, "The request is invalid.")
	ProfileDoesNotExist  = newError(http.StatusForbidden, 101, "Profile does not exist")
	UserNotRegistered    = newError(http.StatusForbidden, 102, "Email provided is not registered. Please register first.")
	AccountNotApproved   = newError(http.StatusForbidden, 103, "Your account has not been approved yet.")
	InvalidAppleUser     = newError(http.StatusForbidden, 104, "Could not identify the Apple account. Please login with email shared.")
	Unauthorized         = newError(http.StatusUnauthorized, 105, "Your email and token do not match.")
	InvalidProviderToken = newError(http.StatusUnauthorized, 106, "Login failed.")
	InvalidToken         = newError(http.StatusUnauthorized, 107, "Invalid token.")
	TokenExpired         = newError(http.StatusUnauthorized, 108, "Token has expired. Please login again.")
	PermissionDenied     = newError(http.StatusForbidden, 109, "Your account has not been approved yet.")
	UserNotFound         = newError(http.StatusNotFound, 110, "User not found.")

	ItemNotAvailable   = newError(http.StatusNotFound, 201, "The requested item is not available")
	InsufficientPoints = newError(http.StatusUnprocessableEntity, 202, "Not enough points to buy the requested item.")
	ItemAlreadyOwned   = newError(http.StatusUnprocessableEntity, 203, "The requested item is already purchased by the user.")

	PostNotFound = newError(http.StatusNotFound, 301, "The requested post does not exist.")

	Unexpected = newError(http.StatusInternalServerError, 500, "The server encountered an unexpected condition.")
)
