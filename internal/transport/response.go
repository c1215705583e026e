// Package transport contains the HTTP router, middleware chain, and the
// request handlers of the entity configuration API.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pitabwire/entityconfig/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:            http.StatusBadRequest,
	model.ErrUnauthorized:          http.StatusUnauthorized,
	model.ErrForbidden:             http.StatusForbidden,
	model.ErrNotFound:              http.StatusNotFound,
	model.ErrConflict:              http.StatusConflict,
	model.ErrValidationError:       http.StatusUnprocessableEntity,
	model.ErrInvalidConfiguration:  http.StatusBadRequest,
	model.ErrUnsupportedExpression: http.StatusBadRequest,
	model.ErrInternalError:         http.StatusInternalServerError,
	model.ErrLogic:                 http.StatusInternalServerError,
	model.ErrCacheUnavailable:      http.StatusServiceUnavailable,
}

// WriteJSON encodes body as the JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// publicEnvelope returns the envelope carried by err if it may be shown to
// callers. Unknown errors and LOGIC_ERROR become a generic internal error.
func publicEnvelope(err error) *model.ErrorEnvelope {
	var ee *model.ErrorEnvelope
	if errors.As(err, &ee) && ee.Code != model.ErrLogic {
		return ee
	}
	return model.NewInternalError()
}

// StatusFor returns the HTTP status WriteError answers err with.
func StatusFor(err error) int {
	var ee *model.ErrorEnvelope
	if errors.As(err, &ee) {
		if status, known := statusForCode[ee.Code]; known {
			return status
		}
	}
	return http.StatusInternalServerError
}

// WriteError writes err as {"error": envelope}. Wrapped envelopes are
// unwrapped first.
func WriteError(w http.ResponseWriter, err error) {
	ee := publicEnvelope(err)
	WriteJSON(w, StatusFor(ee), struct {
		Error *model.ErrorEnvelope `json:"error"`
	}{ee})
}

func WriteNotFound(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewNotFoundError(msg))
}

func WriteForbidden(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewForbiddenError(msg))
}
