package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusOK, map[string]string{"csrfToken": "abc"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"csrfToken":"abc"}`, w.Body.String())
}

func TestWriteError_Typed(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, CSRFError(CodeCSRFTokenInvalid, "CSRF token mismatch").WithCause(errors.New("digest differs")))

	assert.Equal(t, http.StatusForbidden, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, CodeCSRFTokenInvalid, body.Code)
	assert.Equal(t, "CSRF token mismatch", body.Message)
	assert.NotContains(t, w.Body.String(), "digest differs")
}

func TestWriteError_Wrapped(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, fmt.Errorf("stage failed: %w", Unauthorized("No session")))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, CodeUnauthorized, decodeEnvelope(t, w).Code)
}

func TestWriteError_UntypedBecomesInternal(t *testing.T) {
	w := httptest.NewRecorder()

	WriteError(w, errors.New("pq: connection refused at /var/run/postgres"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, CodeInternal, body.Code)
	assert.Equal(t, "Internal server error", body.Message)
	assert.NotContains(t, w.Body.String(), "postgres")
}

func TestWriteError_Details(t *testing.T) {
	w := httptest.NewRecorder()
	details := []map[string]string{{"field": "/name", "message": "required"}}

	WriteError(w, ValidationError(http.StatusUnprocessableEntity, CodeValidationFailed, "Validation failed").WithDetails(details))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t,
		`{"error":{"code":"VALIDATION_FAILED","message":"Validation failed","details":[{"field":"/name","message":"required"}]}}`,
		w.Body.String())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("redis: connection refused")
	err := BackendUnavailable("Rate limiting unavailable").WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusTooManyRequests, err.Status)
	assert.Equal(t, KindBackendUnavailable, err.Kind)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestError_CopiesAreIndependent(t *testing.T) {
	base := Forbidden(CodeForbidden, "Requires role manager or higher")
	withCause := base.WithCause(errors.New("not found"))

	assert.Nil(t, base.Unwrap())
	assert.NotNil(t, withCause.Unwrap())
}
