package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/driveclone/apiserver/internal/auth"
	"github.com/driveclone/apiserver/types"
)

// EventFileUploaded is the type of the event published after an upload.
const EventFileUploaded = "file.uploaded"

var (
	ErrNoFile          = errors.New("no file uploaded")
	ErrFileTooLarge    = errors.New("file too large")
	ErrInvalidFileType = errors.New("invalid file type")
	ErrStorage         = errors.New("file storage failure")
)

// ObjectStore is the external file store.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PublicURL(key string) string
}

// EventPublisher announces completed uploads.
type EventPublisher interface {
	PublishJSON(ctx context.Context, channel string, v any, attrs map[string]string) (string, error)
}

type FileConfig struct {
	MaxBytes     int64
	AllowedTypes []string
	EventChannel string
}

// FileUpload is a file received from an authenticated user.
type FileUpload struct {
	Filename    string
	ContentType string
	Data        []byte
	Owner       auth.Identity
}

// FileService validates uploads and writes them to the object store.
type FileService struct {
	objects  ObjectStore
	events   EventPublisher
	maxBytes int64
	allowed  map[string]struct{}
	channel  string
	now      func() time.Time
	logger   zerolog.Logger
}

func NewFileService(objects ObjectStore, events EventPublisher, cfg FileConfig, logger zerolog.Logger) *FileService {
	allowed := make(map[string]struct{}, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return &FileService{
		objects:  objects,
		events:   events,
		maxBytes: cfg.MaxBytes,
		allowed:  allowed,
		channel:  cfg.EventChannel,
		now:      time.Now,
		logger:   logger.With().Str("component", "files").Logger(),
	}
}

// MaxBytes is the largest accepted upload.
func (s *FileService) MaxBytes() int64 {
	return s.maxBytes
}

// Store checks the upload against the size and type limits, writes it under
// a fresh key in uploads/ and announces it on the event channel.
func (s *FileService) Store(ctx context.Context, upload FileUpload) (types.StoredFile, error) {
	if len(upload.Data) == 0 {
		return types.StoredFile{}, ErrNoFile
	}
	if s.maxBytes > 0 && int64(len(upload.Data)) > s.maxBytes {
		return types.StoredFile{}, ErrFileTooLarge
	}

	contentType, err := s.checkContentType(upload.ContentType)
	if err != nil {
		return types.StoredFile{}, err
	}

	now := s.now().UTC()
	key := objectKey(now, upload.Filename, contentType)
	size := int64(len(upload.Data))

	if err := s.objects.Put(ctx, key, bytes.NewReader(upload.Data), size, contentType); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("upload to object store failed")
		return types.StoredFile{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	stored := types.StoredFile{
		Path:        key,
		PublicURL:   s.objects.PublicURL(key),
		Size:        size,
		ContentType: contentType,
		OwnerID:     upload.Owner.UserID,
		UploadedAt:  now,
	}
	s.logger.Info().
		Str("key", key).
		Int64("size", size).
		Str("user_id", upload.Owner.UserID).
		Msg("file uploaded")

	s.announce(ctx, stored, upload.Owner)
	return stored, nil
}

// announce publishes the upload event. Failures are logged and do not fail
// the upload, which has already been stored.
func (s *FileService) announce(ctx context.Context, stored types.StoredFile, owner auth.Identity) {
	if s.events == nil || s.channel == "" {
		return
	}
	event := types.UploadEvent{
		Type:       EventFileUploaded,
		Path:       stored.Path,
		PublicURL:  stored.PublicURL,
		Size:       stored.Size,
		OwnerID:    owner.UserID,
		Username:   owner.Username,
		UploadedAt: stored.UploadedAt,
	}
	if _, err := s.events.PublishJSON(ctx, s.channel, event, map[string]string{"event": EventFileUploaded}); err != nil {
		s.logger.Warn().Err(err).Str("key", stored.Path).Msg("publish upload event failed")
	}
}

func (s *FileService) checkContentType(declared string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", ErrInvalidFileType
	}
	if len(s.allowed) == 0 {
		return mediaType, nil
	}
	if _, ok := s.allowed[mediaType]; !ok {
		return "", ErrInvalidFileType
	}
	return mediaType, nil
}

var (
	safeExtension = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

	extensionByType = map[string]string{
		"image/png":     ".png",
		"image/jpeg":    ".jpg",
		"image/gif":     ".gif",
		"image/svg+xml": ".svg",
	}
)

// objectKey builds uploads/<unix millis>_<uuid><ext>. The extension comes
// from the client filename when it is plain alphanumeric, otherwise from
// the content type.
func objectKey(now time.Time, filename, contentType string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filename, `\`, "/")))
	if !safeExtension.MatchString(ext) {
		ext = extensionByType[contentType]
		if ext == "" {
			if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
				ext = exts[0]
			}
		}
	}
	return fmt.Sprintf("uploads/%d_%s%s", now.UnixMilli(), uuid.NewString(), ext)
}
