package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	customError "github.com/lendpeer/escrow-engine/pkg/errors"
)

func TestBusinessError_StatusMapping(t *testing.T) {
	tests := []struct {
		code       string
		wantStatus int
	}{
		{customError.ErrCodeValidation, http.StatusBadRequest},
		{customError.ErrCodeNotFound, http.StatusNotFound},
		{customError.ErrCodeInvariantViolation, http.StatusConflict},
		{customError.ErrCodeInvalidTransition, http.StatusConflict},
		{customError.ErrCodeInsufficientFunds, http.StatusConflict},
		{customError.ErrCodeProcessorError, http.StatusBadGateway},
		{customError.ErrCodeDatabaseError, http.StatusInternalServerError},
		{customError.ErrCodeCacheError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		BusinessError(rec, customError.NewBusinessError(tt.code, "boom", nil))
		assert.Equal(t, tt.wantStatus, rec.Code, tt.code)
	}
}

func TestBusinessError_UnknownErrorIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	BusinessError(rec, errors.New("plain error"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body Response
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Success)
	// Raw internals never leak into the response body.
	assert.Empty(t, body.Error)
}

func TestBusinessError_CodeInBody(t *testing.T) {
	rec := httptest.NewRecorder()
	BusinessError(rec, customError.WrapValidation("amount must be positive", customError.ErrInvalidAmount))

	var body Response
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, customError.ErrCodeValidation, body.Code)
	assert.Equal(t, "amount must be positive", body.Message)
}

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, map[string]string{"hello": "world"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body Response
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Success)
}
