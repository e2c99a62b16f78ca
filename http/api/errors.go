package api

import (
	"errors"
	"net/http"

	"github.com/segmentio/encoding/json"
)

// Error is a user-visible failure rendered as {"detail": ...}.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	return e.Detail
}

var (
	ErrAuthenticate  = &Error{Status: http.StatusUnauthorized, Detail: "Invalid authentication scheme"}
	ErrInvalidToken  = &Error{Status: http.StatusUnauthorized, Detail: "The token is invalid"}
	ErrInvalidParams = &Error{Status: http.StatusBadRequest, Detail: "Invalid parameters were provided"}
	ErrNoPermission  = &Error{Status: http.StatusForbidden, Detail: "You have no permissions to view this page"}
	ErrInternal      = &Error{Status: http.StatusInternalServerError, Detail: "Internal server error"}
	ErrTooLarge      = &Error{Status: http.StatusRequestEntityTooLarge, Detail: "Request body too large"}
)

type errorBody struct {
	Detail string `json:"detail"`
}

// WriteError renders err. Anything that is not an *Error becomes a 500.
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = ErrInternal
	}

	WriteJSON(w, apiErr.Status, errorBody{Detail: apiErr.Detail})
}

// WriteJSON writes body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		payload = []byte(`{"detail":"Internal server error"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
