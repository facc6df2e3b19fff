package output

import (
	"context"
	"time"
)

// ArchiveGateway exports checkpoint documents to long-term storage
// (local directory, S3, ...). Archives are write-once.
type ArchiveGateway interface {
	// SaveArchive persists an export document
	SaveArchive(ctx context.Context, req SaveArchiveRequest) (*ArchiveMetadata, error)

	// LoadArchive retrieves a previously saved export
	LoadArchive(ctx context.Context, archiveID string) (*Archive, error)

	// ListArchives lists archive metadata for a task
	ListArchives(ctx context.Context, taskID string) ([]*ArchiveMetadata, error)
}

// SaveArchiveRequest represents a request to save an archive
type SaveArchiveRequest struct {
	TaskID      string            // Associated task ID
	Content     []byte            // Export document content
	ContentType string            // MIME type
	Metadata    map[string]string // Additional metadata
}

// Archive is a stored export with its metadata
type Archive struct {
	ID       string
	Content  []byte
	Metadata ArchiveMetadata
}

// ArchiveMetadata describes a stored archive
type ArchiveMetadata struct {
	ID          string            `json:"id"`
	TaskID      string            `json:"task_id"`
	StoragePath string            `json:"storage_path"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	UploadedAt  time.Time         `json:"uploaded_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
