package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveclone/apiserver/internal/httpx"
	"github.com/driveclone/apiserver/internal/services"
	"github.com/driveclone/apiserver/internal/store"
)

func TestErrorWriter(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &services.ValidationError{Fields: []services.FieldError{{Field: "email", Message: "Invalid email format"}}}, http.StatusBadRequest, httpx.CodeValidationFailed},
		{"duplicate username", store.ErrDuplicateUsername, http.StatusBadRequest, httpx.CodeDuplicateUsername},
		{"duplicate email", fmt.Errorf("create: %w", store.ErrDuplicateEmail), http.StatusBadRequest, httpx.CodeDuplicateEmail},
		{"bad credentials", services.ErrInvalidCredentials, http.StatusUnauthorized, httpx.CodeInvalidCredentials},
		{"no file", services.ErrNoFile, http.StatusBadRequest, httpx.CodeNoFile},
		{"file type", services.ErrInvalidFileType, http.StatusBadRequest, httpx.CodeInvalidFileType},
		{"too large", services.ErrFileTooLarge, http.StatusBadRequest, httpx.CodeFileTooLarge},
		{"bad body", errInvalidRequest, http.StatusBadRequest, httpx.CodeInvalidRequest},
		{"storage", fmt.Errorf("%w: timeout", services.ErrStorage), http.StatusBadGateway, httpx.CodeStorageError},
		{"store", fmt.Errorf("%w: connection refused", services.ErrStore), http.StatusInternalServerError, httpx.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			errorWriter{logger: zerolog.Nop()}.write(rec, httptest.NewRequest(http.MethodPost, "/", nil), tt.err)

			require.Equal(t, tt.status, rec.Code)
			var resp httpx.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestErrorWriterHidesInternalDetails(t *testing.T) {
	cause := errors.New("pq: password authentication failed")
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	hidden := httptest.NewRecorder()
	errorWriter{logger: zerolog.Nop()}.write(hidden, req, cause)
	assert.NotContains(t, hidden.Body.String(), "password authentication")

	shown := httptest.NewRecorder()
	errorWriter{expose: true, logger: zerolog.Nop()}.write(shown, req, cause)
	assert.Contains(t, shown.Body.String(), "password authentication")
}

func TestReadFileLimited(t *testing.T) {
	data, err := readFileLimited(strings.NewReader("12345"), 5)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(data))

	_, err = readFileLimited(strings.NewReader("123456"), 5)
	assert.ErrorIs(t, err, services.ErrFileTooLarge)

	data, err = readFileLimited(strings.NewReader("unbounded"), 0)
	require.NoError(t, err)
	assert.Equal(t, "unbounded", string(data))
}

func TestIsFormRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.False(t, isFormRequest(req))

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	assert.True(t, isFormRequest(req))

	req.Header.Set("Content-Type", "application/json")
	assert.False(t, isFormRequest(req))
}
