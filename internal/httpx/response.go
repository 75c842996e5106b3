package httpx

import (
	"encoding/json"
	"net/http"
)

// Machine-readable error codes returned in ErrorResponse.Code.
const (
	CodeValidationFailed   = "validation_failed"
	CodeDuplicateUsername  = "duplicate_username"
	CodeDuplicateEmail     = "duplicate_email"
	CodeInvalidCredentials = "invalid_credentials"
	CodeMissingCredential  = "missing_credential"
	CodeInvalidCredential  = "invalid_credential"
	CodeInvalidRequest     = "invalid_request"
	CodeNoFile             = "no_file"
	CodeInvalidFileType    = "invalid_file_type"
	CodeFileTooLarge       = "file_too_large"
	CodeStorageError       = "storage_error"
	CodeInternalError      = "internal_error"
	CodeNotFound           = "not_found"
	CodeMethodNotAllowed   = "method_not_allowed"
	CodeRateLimited        = "rate_limited"
)

// ErrorResponse is the single error envelope used by every endpoint.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// MessageResponse is a plain success payload.
type MessageResponse struct {
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// WriteErrorDetails writes the envelope with details attached. A nil
// details value is omitted from the payload.
func WriteErrorDetails(w http.ResponseWriter, status int, code, message string, details any) {
	WriteJSON(w, status, ErrorResponse{Code: code, Message: message, Details: details})
}
