package backup

import (
	"context"
	"time"
)

// BlobStore is the minimal object storage surface the rotation engine
// needs. Implemented by the S3 client; tests use an in-memory fake.
type BlobStore interface {
	Put(ctx context.Context, key string, body []byte) error
	List(ctx context.Context, prefix string) ([]Object, error)
	BatchDelete(ctx context.Context, keys []string) error
}

// one listed blob store object
type Object struct {
	Key          string
	LastModified time.Time
}

// the session payload serialized into a snapshot
type SnapshotPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

// the outcome of one backup attempt. Backups are advisory: failures
// are reported here, never as errors to the caller.
type Result struct {
	Skipped  bool   `json:"skipped"`
	Uploaded string `json:"uploaded,omitempty"`
	Deleted  int    `json:"deleted"`
}
