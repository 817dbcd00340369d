package models

import (
	"time"

	"github.com/google/uuid"
)

type Media struct {
	ID               uuid.UUID `db:"id" json:"id"`
	UploaderID       uuid.UUID `db:"uploader_id" json:"uploader_id"`
	OriginalFilename string    `db:"original_filename" json:"original_filename"`
	StoragePath      string    `db:"storage_path" json:"storage_path"`
	FileSize         int64     `db:"file_size" json:"file_size"`
	MimeType         string    `db:"mime_type" json:"mime_type"`
	URL              string    `db:"-" json:"url"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
