package schemas

import (
	"fmt"
	"net/http"
)

// ErrorResponse represents a standard API error (RFC 7807).
// It implements the standard Go error interface.
type ErrorResponse struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"` // HTTP Status Code
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
}

// Error implements the error interface.
// This allows ErrorResponse to be returned as a standard Go error.
func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

// NewErrorResponse creates a general ErrorResponse.
func NewErrorResponse(status int, title, detail, instance string) *ErrorResponse {
	return &ErrorResponse{
		Type:     fmt.Sprintf("https://crowdseg-service.com/errors/%d", status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// --- Helper Constructors for Common HTTP Errors ---

// NewBadRequestError creates a 400 Bad Request error.
func NewBadRequestError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusBadRequest, "Bad Request", detail, instance)
}

// NewNotFoundError creates a 404 Not Found error.
func NewNotFoundError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusNotFound, "Not Found", detail, instance)
}

// NewConflictError creates a 409 Conflict error.
func NewConflictError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusConflict, "Conflict", detail, instance)
}

// NewInternalError creates a 500 Internal Server Error.
// Note: Be careful not to expose sensitive technical details in production.
func NewInternalError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusInternalServerError, "Internal Server Error", detail, instance)
}

// NewBadGatewayError creates a 502 Bad Gateway error.
// Used when an upstream collaborator (preprocess or merge service) fails.
func NewBadGatewayError(detail, instance string) *ErrorResponse {
	return NewErrorResponse(http.StatusBadGateway, "Bad Gateway", detail, instance)
}

// --- Domain-Specific Error Constructors ---

// SessionAlreadyClosedError creates a 409 Conflict for a second close.
func SessionAlreadyClosedError(detail, instance string) *ErrorResponse {
	return &ErrorResponse{
		Type:     "https://crowdseg-service.com/session-already-closed",
		Title:    "Session Already Closed",
		Status:   http.StatusConflict,
		Detail:   detail,
		Instance: instance,
	}
}

// SessionNotActiveError creates a 409 Conflict for cancelling a session
// that is closed or past its deadline.
func SessionNotActiveError(detail, instance string) *ErrorResponse {
	return &ErrorResponse{
		Type:     "https://crowdseg-service.com/session-not-active",
		Title:    "Session Not Active",
		Status:   http.StatusConflict,
		Detail:   detail,
		Instance: instance,
	}
}

// WorkerBusyError creates a 409 Conflict for a worker that already holds
// an open session.
func WorkerBusyError(detail, instance string) *ErrorResponse {
	return &ErrorResponse{
		Type:     "https://crowdseg-service.com/worker-busy",
		Title:    "Worker Busy",
		Status:   http.StatusConflict,
		Detail:   detail,
		Instance: instance,
	}
}
