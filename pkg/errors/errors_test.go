package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")

	tests := []struct {
		name       string
		err        *AppError
		wantType   ErrorType
		wantStatus int
	}{
		{"validation", NewValidationError("bad persona", nil), ErrorTypeValidation, http.StatusBadRequest},
		{"authentication", NewAuthenticationError("Invalid or expired token"), ErrorTypeAuthentication, http.StatusUnauthorized},
		{"not found", NewNotFoundError("User not found"), ErrorTypeNotFound, http.StatusNotFound},
		{"conflict", NewConflictError("duplicate", cause), ErrorTypeConflict, http.StatusConflict},
		{"internal", NewInternalError("boom", cause), ErrorTypeInternal, http.StatusInternalServerError},
		{"external", NewExternalError("provider down", cause), ErrorTypeExternal, http.StatusBadGateway},
		{"rate limit", NewRateLimitError("slow down"), ErrorTypeRateLimit, http.StatusTooManyRequests},
		{"unavailable", NewUnavailableError("store down", cause), ErrorTypeUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantStatus, tt.err.StatusCode)
			assert.Contains(t, tt.err.Error(), string(tt.wantType))
		})
	}
}

func TestUnwrapAndAs(t *testing.T) {
	cause := stderrors.New("connection reset")
	appErr := NewUnavailableError("store down", cause)

	assert.ErrorIs(t, appErr, cause)

	wrapped := fmt.Errorf("upsert: %w", appErr)
	assert.Same(t, appErr, As(wrapped))

	plain := As(cause)
	assert.Equal(t, ErrorTypeInternal, plain.Type)
	assert.ErrorIs(t, plain, cause)
}

func TestWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	appErr := NewValidationError("Invalid persona", map[string]interface{}{"field": "persona"})

	require.NoError(t, Write(rec, appErr, "req-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, ErrorTypeValidation, body.Error.Type)
	assert.Equal(t, "Invalid persona", body.Error.Message)
	assert.Equal(t, "persona", body.Error.Details["field"])
	assert.Equal(t, "req-1", body.Error.RequestID)
	assert.NotEmpty(t, body.Error.Timestamp)
}
