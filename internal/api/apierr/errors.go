package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/typeroom/internal/model"
	"github.com/mcoot/typeroom/internal/services/auth"
	"github.com/mcoot/typeroom/internal/services/room"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeInvalidRoomCode   = "INVALID_ROOM_CODE"
	CodeInvalidMetrics    = "INVALID_METRICS"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeTokenExpired      = "TOKEN_EXPIRED"
	CodeNotHost           = "NOT_HOST"
	CodeNotParticipant    = "NOT_PARTICIPANT"
	CodeRoomNotFound      = "ROOM_NOT_FOUND"
	CodeRoomExists        = "ROOM_EXISTS"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeUnavailable       = "UNAVAILABLE"
	CodeInternalError     = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status an error maps to
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	// Check for specific error types
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	// Map model errors
	switch {
	case errors.Is(err, model.ErrRoomNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeRoomNotFound, "Room not found"}}
	case errors.Is(err, model.ErrRoomExists):
		return &httpError{http.StatusConflict, APIError{CodeRoomExists, "Room code already in use"}}
	case errors.Is(err, model.ErrInvalidRoomCode):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidRoomCode, "Invalid room code"}}
	case errors.Is(err, model.ErrInvalidTransition):
		return &httpError{http.StatusConflict, APIError{CodeInvalidTransition, "Room is not in the right state for this action"}}
	case errors.Is(err, model.ErrNotHost):
		return &httpError{http.StatusForbidden, APIError{CodeNotHost, "Only the host can perform this action"}}
	case errors.Is(err, model.ErrNotParticipant):
		return &httpError{http.StatusForbidden, APIError{CodeNotParticipant, "Not a participant of this room"}}
	case errors.Is(err, model.ErrInvalidMetrics):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidMetrics, err.Error()}}
	case errors.Is(err, model.ErrStorage):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeUnavailable, "Storage is unavailable"}}

	// Map room service errors
	case errors.Is(err, room.ErrInvalidName):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, "Room name is too long"}}
	case errors.Is(err, room.ErrCodeSpaceExhausted):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeUnavailable, "Could not allocate a room code"}}

	// Map auth errors
	case errors.Is(err, auth.ErrTokenExpired):
		return &httpError{http.StatusUnauthorized, APIError{CodeTokenExpired, "Identity token has expired"}}
	case errors.Is(err, auth.ErrUnverifiedIdentity):
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Invalid identity token"}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}

// WritePanic answers a request whose handler panicked
func WritePanic(w http.ResponseWriter, _ *http.Request, _ any) {
	WriteError(w, NewInternalError())
}
