package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/driveclone/apiserver/internal/httpx"
	"github.com/driveclone/apiserver/internal/services"
	"github.com/driveclone/apiserver/internal/store"
)

const (
	maxFormBytes = 1 << 20

	msgServerError   = "Server error"
	msgInvalidBody   = "Request body could not be parsed"
	msgValidation    = "Validation failed"
	msgNoFile        = "No file uploaded"
	msgFileType      = "File type is not allowed"
	msgFileTooLarge  = "File exceeds the upload size limit"
	msgStorageFailed = "Failed to upload file to storage"
)

var errInvalidRequest = errors.New("invalid request body")

// errorWriter maps service errors onto the JSON error envelope. Internal
// error text is only echoed when expose is set.
type errorWriter struct {
	expose bool
	logger zerolog.Logger
}

func (e errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.WriteErrorDetails(w, http.StatusBadRequest, httpx.CodeValidationFailed, msgValidation, verr.Fields)
	case errors.Is(err, store.ErrDuplicateUsername):
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeDuplicateUsername, "Username already exists")
	case errors.Is(err, store.ErrDuplicateEmail):
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeDuplicateEmail, "Email already exists")
	case errors.Is(err, services.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeInvalidCredentials, "Username or password is incorrect")
	case errors.Is(err, errInvalidRequest):
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeInvalidRequest, msgInvalidBody)
	case errors.Is(err, services.ErrNoFile):
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeNoFile, msgNoFile)
	case errors.Is(err, services.ErrInvalidFileType):
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeInvalidFileType, msgFileType)
	case errors.Is(err, services.ErrFileTooLarge):
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeFileTooLarge, msgFileTooLarge)
	case errors.Is(err, services.ErrStorage):
		e.internal(w, r, http.StatusBadGateway, httpx.CodeStorageError, msgStorageFailed, err)
	default:
		e.internal(w, r, http.StatusInternalServerError, httpx.CodeInternalError, msgServerError, err)
	}
}

func (e errorWriter) internal(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	e.logger.Error().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("request failed")
	if e.expose {
		httpx.WriteErrorDetails(w, status, code, message, err.Error())
		return
	}
	httpx.WriteError(w, status, code, message)
}

// isFormRequest reports whether the body is url-encoded or multipart form data.
func isFormRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data"
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, services.ErrFileTooLarge
	}
	return data, nil
}
