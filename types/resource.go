package types

import "time"

// Resource is an uploaded document tied to a subject.
type Resource struct {
	ID          int    `json:"id" db:"id"`
	Title       string `json:"title" db:"title"`
	Description string `json:"description" db:"description"`

	// OriginalFilename is the name the file had on the uploader's machine.
	OriginalFilename string `json:"original_filename" db:"original_filename"`

	// StoragePath is the key under which the file is stored. It is written once.
	StoragePath string `json:"-" db:"storage_path"`

	SubjectID   int    `json:"subject_id" db:"subject_id"`
	SubjectName string `json:"subject_name" db:"-"`

	UploaderID   int    `json:"uploader_id" db:"uploader_id"`
	UploaderName string `json:"uploader_name" db:"-"`

	SizeBytes  int64     `json:"size_bytes" db:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
	Active     bool      `json:"active" db:"active"`

	// DownloadCount is aggregated from the downloads table.
	DownloadCount int `json:"download_count" db:"-"`
}
