package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pitabwire/entityconfig/model"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"hello": "world"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body["hello"] != "world" {
		t.Errorf("body = %v, err = %v", body, err)
	}

	empty := httptest.NewRecorder()
	WriteJSON(empty, http.StatusNoContent, nil)
	if empty.Body.Len() != 0 {
		t.Errorf("nil body wrote %q", empty.Body.String())
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{"not found", model.NewNotFoundError("entity not found"), 404, model.ErrNotFound, "entity not found"},
		{"wrapped", fmt.Errorf("resolve config: %w", model.NewInvalidConfigurationError("class name is required")),
			400, model.ErrInvalidConfiguration, "class name is required"},
		{"unsupported expression", model.NewUnsupportedExpressionError("unsupported"), 400, model.ErrUnsupportedExpression, "unsupported"},
		{"conflict", model.NewConflictError("taken"), 409, model.ErrConflict, "taken"},
		{"cache down", &model.ErrorEnvelope{Code: model.ErrCacheUnavailable, Message: "cache"}, 503, model.ErrCacheUnavailable, "cache"},
		{"unknown code", &model.ErrorEnvelope{Code: "TEAPOT", Message: "short and stout"}, 500, "TEAPOT", "short and stout"},
		{"plain error", errors.New("dial tcp: refused"), 500, model.ErrInternalError, ""},
		{"logic error hidden", model.NewLogicError("Reader must be configured with source"), 500, model.ErrInternalError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			env := decodeError(t, rec)
			if env.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", env.Code, tt.wantCode)
			}
			if tt.wantMessage != "" && env.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", env.Message, tt.wantMessage)
			}
			if tt.wantMessage == "" && strings.Contains(tt.err.Error(), env.Message) {
				t.Errorf("message %q leaks the internal error", env.Message)
			}
		})
	}
}

func TestWriteError_validationDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, model.NewValidationError([]model.FieldError{
		{Field: "email", Code: "REQUIRED", Message: "email is required"},
	}))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if env := decodeError(t, rec); len(env.Details) != 1 || env.Details[0].Field != "email" {
		t.Errorf("details = %+v", env.Details)
	}
}

func TestStatusFor_matchesWriteError(t *testing.T) {
	for code := range statusForCode {
		err := fmt.Errorf("ctx: %w", &model.ErrorEnvelope{Code: code, Message: "x"})
		rec := httptest.NewRecorder()
		WriteError(rec, err)
		if code == model.ErrLogic {
			continue
		}
		if got := StatusFor(err); got != rec.Code {
			t.Errorf("%s: StatusFor = %d, WriteError = %d", code, got, rec.Code)
		}
	}
}

func TestShortcutWriters(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteNotFound(rec, "route not found")
	if rec.Code != http.StatusNotFound {
		t.Errorf("WriteNotFound status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	WriteForbidden(rec, "missing capability config:read")
	if env := decodeError(t, rec); rec.Code != http.StatusForbidden || env.Message != "missing capability config:read" {
		t.Errorf("WriteForbidden = %d %+v", rec.Code, env)
	}
}
