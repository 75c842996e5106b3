package types

import "time"

// StoredFile describes an object written to the file store on behalf of a user.
type StoredFile struct {
	Path        string    `json:"filePath"`
	PublicURL   string    `json:"fileURL"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	OwnerID     string    `json:"ownerId"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// UploadEvent is published to the message queue after a successful upload.
type UploadEvent struct {
	Type       string    `json:"type"`
	Path       string    `json:"filePath"`
	PublicURL  string    `json:"fileURL"`
	Size       int64     `json:"size"`
	OwnerID    string    `json:"ownerId"`
	Username   string    `json:"username"`
	UploadedAt time.Time `json:"uploadedAt"`
}
