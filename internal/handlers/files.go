package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/driveclone/apiserver/internal/auth"
	"github.com/driveclone/apiserver/internal/httpx"
	"github.com/driveclone/apiserver/internal/services"
)

const (
	formFieldFile = "file"
	// multipartOverhead bounds the non-file parts and boundaries of an upload body.
	multipartOverhead = 1 << 20
)

// FileHandler accepts uploads from authenticated users.
type FileHandler struct {
	files   *services.FileService
	respond errorWriter
}

func NewFileHandler(files *services.FileService, exposeErrors bool, logger zerolog.Logger) *FileHandler {
	return &FileHandler{
		files:   files,
		respond: errorWriter{expose: exposeErrors, logger: logger},
	}
}

// FileRouter registers the /api/files routes. Every route sits behind the
// session gate; extra middleware such as the upload rate limiter applies
// to the upload route only.
func FileRouter(r chi.Router, handler *FileHandler, gate *auth.Gate, uploadMiddleware ...func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(gate.Require)
		r.With(uploadMiddleware...).Post("/upload", handler.Upload)
	})
}

// Upload stores the multipart "file" field and returns its path and public URL.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeMissingCredential, "No authentication token found")
		return
	}

	upload, err := h.readUpload(w, r)
	if err != nil {
		h.respond.write(w, r, err)
		return
	}
	upload.Owner = identity

	stored, err := h.files.Store(r.Context(), upload)
	if err != nil {
		h.respond.write(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, UploadResponse{
		Message:  "File uploaded successfully",
		FilePath: stored.Path,
		FileURL:  stored.PublicURL,
	})
}

// readUpload streams the multipart body and returns the first "file" part.
func (h *FileHandler) readUpload(w http.ResponseWriter, r *http.Request) (services.FileUpload, error) {
	limit := h.files.MaxBytes()
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return services.FileUpload{}, services.ErrNoFile
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return services.FileUpload{}, services.ErrNoFile
		}
		if err != nil {
			return services.FileUpload{}, classifyReadError(err)
		}
		if part.FormName() != formFieldFile {
			_ = part.Close()
			continue
		}

		data, err := readFileLimited(part, limit)
		_ = part.Close()
		if err != nil {
			return services.FileUpload{}, classifyReadError(err)
		}
		return services.FileUpload{
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		}, nil
	}
}

func classifyReadError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.Is(err, services.ErrFileTooLarge) || errors.As(err, &maxErr) {
		return services.ErrFileTooLarge
	}
	return fmt.Errorf("%w: %w", errInvalidRequest, err)
}

type UploadResponse struct {
	Message  string `json:"message"`
	FilePath string `json:"filePath"`
	FileURL  string `json:"fileURL"`
}
